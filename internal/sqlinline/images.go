package sqlinline

const QInsertJobImage = `--sql 8a3dbd6d-96fe-4a98-948e-ff7c7eee4c8e
insert into job_images(id, job_id, position, original_url, status)
values ($1::uuid, $2::uuid, $3::int, $4::text, 'queued');
`

const QListJobImages = `--sql 1a45d2ce-0d93-4785-a7c4-f6a7205dbf44
select
  id,
  job_id,
  position,
  original_url,
  coalesce(processed_url, ''),
  status,
  coalesce(provider, ''),
  coalesce(method, ''),
  coalesce(cost_estimate, 0)::float8,
  attempts,
  coalesce(elapsed_ms, 0),
  coalesce(error_kind, ''),
  coalesce(error_message, ''),
  hints
from job_images
where job_id = $1::uuid
order by position asc;
`

const QRecordImageSuccess = `--sql 39cb3a7d-93af-49e8-9947-7583d138a6e2
update job_images
set status = 'completed',
    processed_url = $2::text,
    provider = $3::text,
    method = $4::text,
    cost_estimate = $5::numeric,
    attempts = $6::int,
    elapsed_ms = $7::bigint,
    error_kind = null,
    error_message = null,
    hints = '{}',
    updated_at = now()
where id = $1::uuid;
`

const QRecordImageFailure = `--sql aef8fcec-cfe1-4fd5-8c70-d2d252b71b72
update job_images
set status = 'failed',
    error_kind = $2::text,
    error_message = $3::text,
    hints = $4::text[],
    attempts = $5::int,
    elapsed_ms = $6::bigint,
    updated_at = now()
where id = $1::uuid;
`
