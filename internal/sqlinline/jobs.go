package sqlinline

const QInsertJob = `--sql 1057868c-9549-465b-a19f-d7330af43502
insert into processing_jobs(id, status, prompt, template_id, quality, size, blurred, provider_order, total_items)
values ($1::uuid, 'queued', $2::text, nullif($3::text, ''), $4::text, $5::text, $6::boolean, $7::text[], $8::int)
returning created_at;
`

const QSelectJob = `--sql 0ab1d53a-f760-49f4-8c35-23e9018072a0
select
  id,
  status,
  prompt,
  coalesce(template_id, ''),
  quality,
  size,
  blurred,
  provider_order,
  total_items,
  completed_items,
  failed_items,
  coalesce(zip_url, ''),
  coalesce(error_message, ''),
  created_at,
  updated_at,
  started_at,
  completed_at
from processing_jobs
where id = $1::uuid
limit 1;
`

const QUpdateJobProgress = `--sql 8e7c315b-526a-42dd-83ff-0921c52eaa0f
update processing_jobs
set completed_items = greatest(completed_items, $2::int),
    failed_items = greatest(failed_items, $3::int),
    updated_at = now()
where id = $1::uuid
  and status = 'running';
`

const QFinishJob = `--sql 609b9a03-5361-4d18-b561-9488b3d305c8
update processing_jobs
set status = $2::text,
    zip_url = coalesce(nullif($3::text, ''), zip_url),
    error_message = nullif($4::text, ''),
    completed_at = now(),
    updated_at = now()
where id = $1::uuid;
`
