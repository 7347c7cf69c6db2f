package postgres

// Embedded schema migrations. Applied in order by the Migrator at worker
// startup; each step is transactional.

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_users", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_check_ins", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_besties", UpSQL: migration003Up, DownSQL: migration003Down},
		{Version: 4, Name: "create_consistency_tables", UpSQL: migration004Up, DownSQL: migration004Down},
	}
}

const migration001Up = `
CREATE TABLE users (
    id                 TEXT PRIMARY KEY,
    display_name       TEXT NOT NULL,
    push_token         TEXT NOT NULL DEFAULT '',
    keep_forever       BOOLEAN NOT NULL DEFAULT FALSE,
    premium_plan       BOOLEAN NOT NULL DEFAULT FALSE,

    -- Derived counters. Written only by the stats engine; clamped at zero
    -- in the adjustment statements rather than by constraints so a drifted
    -- decrement degrades instead of erroring.
    total_checkins     INTEGER NOT NULL DEFAULT 0,
    completed_checkins INTEGER NOT NULL DEFAULT 0,
    alerted_checkins   INTEGER NOT NULL DEFAULT 0,
    total_besties      INTEGER NOT NULL DEFAULT 0,
    current_streak     INTEGER NOT NULL DEFAULT 0,
    longest_streak     INTEGER NOT NULL DEFAULT 0,
    days_active        INTEGER NOT NULL DEFAULT 0,
    last_active        TIMESTAMP WITH TIME ZONE,

    badges             TEXT[] NOT NULL DEFAULT '{}',
    bestie_user_ids    TEXT[] NOT NULL DEFAULT '{}',

    created_at         TIMESTAMP WITH TIME ZONE NOT NULL,
    updated_at         TIMESTAMP WITH TIME ZONE NOT NULL
);
`

const migration001Down = `DROP TABLE IF EXISTS users;`

const migration002Up = `
CREATE TABLE check_ins (
    id              TEXT PRIMARY KEY,
    owner_id        TEXT NOT NULL REFERENCES users(id),
    status          TEXT NOT NULL,
    alert_time      TIMESTAMP WITH TIME ZONE NOT NULL,
    reminder_sent   BOOLEAN NOT NULL DEFAULT FALSE,
    circle_user_ids TEXT[] NOT NULL,
    note            TEXT NOT NULL DEFAULT '',
    photo_path      TEXT NOT NULL DEFAULT '',
    completed_at    TIMESTAMP WITH TIME ZONE,
    alerted_at      TIMESTAMP WITH TIME ZONE,
    created_at      TIMESTAMP WITH TIME ZONE NOT NULL,
    updated_at      TIMESTAMP WITH TIME ZONE NOT NULL,

    CONSTRAINT check_ins_status CHECK (status IN ('active', 'completed', 'alerted', 'false_alarm')),
    -- A check-in is completed or alerted, never both.
    CONSTRAINT check_ins_terminal CHECK (completed_at IS NULL OR alerted_at IS NULL)
);

-- Escalation and reminder sweeps select on these.
CREATE INDEX idx_check_ins_due ON check_ins (alert_time) WHERE status = 'active';
CREATE INDEX idx_check_ins_owner_status ON check_ins (owner_id, status);
CREATE INDEX idx_check_ins_owner_completed ON check_ins (owner_id, completed_at) WHERE completed_at IS NOT NULL;
CREATE INDEX idx_check_ins_updated ON check_ins (updated_at) WHERE status <> 'active';
`

const migration002Down = `DROP TABLE IF EXISTS check_ins;`

const migration003Up = `
CREATE TABLE bestie_relationships (
    id           TEXT PRIMARY KEY,
    requester_id TEXT NOT NULL REFERENCES users(id),
    recipient_id TEXT NOT NULL REFERENCES users(id),
    status       TEXT NOT NULL,
    accepted_at  TIMESTAMP WITH TIME ZONE,
    created_at   TIMESTAMP WITH TIME ZONE NOT NULL,
    updated_at   TIMESTAMP WITH TIME ZONE NOT NULL,

    CONSTRAINT bestie_status CHECK (status IN ('pending', 'accepted', 'declined', 'cancelled')),
    CONSTRAINT bestie_not_self CHECK (requester_id <> recipient_id)
);

-- One live relationship per pair, regardless of direction.
CREATE UNIQUE INDEX idx_bestie_live_pair
    ON bestie_relationships (LEAST(requester_id, recipient_id), GREATEST(requester_id, recipient_id))
    WHERE status IN ('pending', 'accepted');
CREATE INDEX idx_bestie_accepted ON bestie_relationships (id) WHERE status = 'accepted';

CREATE TABLE interactions (
    id           TEXT PRIMARY KEY,
    from_user_id TEXT NOT NULL REFERENCES users(id),
    to_user_id   TEXT NOT NULL REFERENCES users(id),
    kind         TEXT NOT NULL,
    created_at   TIMESTAMP WITH TIME ZONE NOT NULL,

    CONSTRAINT interaction_kind CHECK (kind IN ('reaction', 'comment'))
);

CREATE INDEX idx_interactions_pair ON interactions (from_user_id, to_user_id);
CREATE INDEX idx_interactions_created ON interactions (created_at);

CREATE TABLE milestones (
    id              TEXT PRIMARY KEY,
    relationship_id TEXT NOT NULL REFERENCES bestie_relationships(id) ON DELETE CASCADE,
    user_id         TEXT NOT NULL,
    other_user_id   TEXT NOT NULL,
    kind            TEXT NOT NULL,
    value           INTEGER NOT NULL,
    created_at      TIMESTAMP WITH TIME ZONE NOT NULL,

    -- The idempotency guard for milestone rescans.
    CONSTRAINT milestones_once UNIQUE (relationship_id, user_id, kind, value)
);

CREATE INDEX idx_milestones_user ON milestones (user_id, created_at DESC);
`

const migration003Down = `
DROP TABLE IF EXISTS milestones;
DROP TABLE IF EXISTS interactions;
DROP TABLE IF EXISTS bestie_relationships;
`

const migration004Up = `
-- Singleton aggregate snapshot row.
CREATE TABLE analytics_snapshot (
    id                 SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
    total_users        INTEGER NOT NULL DEFAULT 0,
    total_checkins     INTEGER NOT NULL DEFAULT 0,
    completed_checkins INTEGER NOT NULL DEFAULT 0,
    alerted_checkins   INTEGER NOT NULL DEFAULT 0,
    accepted_besties   INTEGER NOT NULL DEFAULT 0,
    rebuilt_at         TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at         TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
INSERT INTO analytics_snapshot (id) VALUES (1);

-- Insert-if-absent ledger of transitions already applied to derived
-- counters. The first delivery inserts; redeliveries conflict and apply
-- nothing.
CREATE TABLE applied_transitions (
    aggregate_id TEXT NOT NULL,
    transition   TEXT NOT NULL,
    applied_at   TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    PRIMARY KEY (aggregate_id, transition)
);

-- Resumable pagination cursors for the daily batches.
CREATE TABLE job_cursors (
    job_name   TEXT PRIMARY KEY,
    cursor     TEXT NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
`

const migration004Down = `
DROP TABLE IF EXISTS job_cursors;
DROP TABLE IF EXISTS applied_transitions;
DROP TABLE IF EXISTS analytics_snapshot;
`
