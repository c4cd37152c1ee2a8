package sqlinline

const QSelectProviderCredential = `--sql 5d0f7a2e-3b61-4c8e-9f14-6a2d8c0b7e93
select api_key
from provider_credentials
where provider = $1::text`

const QUpsertProviderCredential = `--sql b8e4c1d9-72a5-4f06-a3bd-1e9c54f20a7d
insert into provider_credentials(provider, api_key, properties)
values ($1::text, $2::text, $3::jsonb)
on conflict (provider) do update
set api_key = excluded.api_key,
    properties = excluded.properties,
    updated_at = now()`
