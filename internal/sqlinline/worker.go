package sqlinline

const QWorkerClaimJob = `--sql 4f55a9b7-4e9f-4e45-a3b3-5a532d21d9db
with next_job as (
    select id
    from processing_jobs
    where status = 'queued'
    order by created_at asc
    for update skip locked
    limit 1
),
updated as (
    update processing_jobs
    set status = 'running', started_at = now(), updated_at = now()
    where id in (select id from next_job)
    returning id, prompt, coalesce(template_id, ''), quality, size, blurred, provider_order, total_items
)
select * from updated;
`

const QWorkerRequeueStale = `--sql ca5de7e6-37ac-4993-af1b-9c8cd637ecbc
update processing_jobs
set status = 'queued', completed_items = 0, failed_items = 0, started_at = null, updated_at = now()
where status = 'running'
  and updated_at < now() - $1::interval;
`
