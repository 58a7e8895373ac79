package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// snapshotDDL 快照表结构。幂等（if not exists），进程启动时执行。
const snapshotDDL = `
create table if not exists workflow_snapshot (
    id                  bigserial primary key,
    workflow_id         text not null unique,
    strategy            text not null,
    max_concurrent      int  not null default 1,
    continue_on_failure bool not null default false,
    status              text not null,
    seq                 bigint not null default 0,
    taken_at            timestamptz not null,
    updated_at          timestamptz not null default now()
);

create table if not exists workflow_snapshot_task (
    id            bigserial primary key,
    workflow_id   text not null,
    task_id       text not null,
    priority      int  not null default 2,
    seq           bigint not null,
    status        text not null,
    attempt       int  not null default 0,
    max_attempts  int  not null default 3,
    timeout_ms    bigint not null default 0,
    payload       jsonb,
    dependencies  jsonb not null default '[]'::jsonb,
    tags          jsonb,
    result        jsonb,
    last_error    text,
    error_history jsonb,
    created_at    timestamptz not null,
    started_at    timestamptz,
    finished_at   timestamptz,
    wake_at       timestamptz,
    constraint uq_snapshot_task unique (workflow_id, task_id)
);

create index if not exists idx_snapshot_task_workflow on workflow_snapshot_task (workflow_id);
`

// EnsureSchema 初始化快照表。
// MVP 为了减少依赖用内嵌 DDL 直接执行；后续可切换 goose/atlas。
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, snapshotDDL)
	return err
}
