package database

import "context"

// schema is applied once at startup. It is intentionally idempotent
// (IF NOT EXISTS everywhere) so repeated boots against an already-migrated
// database are safe; this project has no incremental migration chain.
const schema = `
CREATE TABLE IF NOT EXISTS organizations (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY,
	org_id UUID NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
	email TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL,
	failed_login_attempts INT NOT NULL DEFAULT 0,
	locked_until TIMESTAMPTZ,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (org_id, email)
);

CREATE TABLE IF NOT EXISTS ai_systems (
	id UUID PRIMARY KEY,
	org_id UUID NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	intended_purpose TEXT NOT NULL DEFAULT '',
	hr_use_case_type TEXT NOT NULL DEFAULT '',
	deployment_type TEXT NOT NULL DEFAULT '',
	decision_influence TEXT NOT NULL DEFAULT '',
	owner_user_id UUID REFERENCES users(id) ON DELETE SET NULL,
	version INT NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (org_id, name)
);

CREATE TABLE IF NOT EXISTS system_versions (
	id UUID PRIMARY KEY,
	ai_system_id UUID NOT NULL REFERENCES ai_systems(id) ON DELETE CASCADE,
	label TEXT NOT NULL,
	status TEXT NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	release_date DATE,
	approved_by UUID REFERENCES users(id) ON DELETE SET NULL,
	approved_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (ai_system_id, label)
);

CREATE TABLE IF NOT EXISTS annex_sections (
	id UUID PRIMARY KEY,
	version_id UUID NOT NULL REFERENCES system_versions(id) ON DELETE CASCADE,
	section_key TEXT NOT NULL,
	content JSONB NOT NULL DEFAULT '{}',
	evidence_refs UUID[] NOT NULL DEFAULT '{}',
	completeness_score NUMERIC NOT NULL DEFAULT 0,
	llm_assisted BOOLEAN NOT NULL DEFAULT FALSE,
	last_edited_by UUID REFERENCES users(id) ON DELETE SET NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (version_id, section_key)
);

CREATE TABLE IF NOT EXISTS evidence_items (
	id UUID PRIMARY KEY,
	org_id UUID NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
	type TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	tags TEXT[] NOT NULL DEFAULT '{}',
	classification TEXT NOT NULL,
	type_metadata JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_evidence_items_org ON evidence_items(org_id);
CREATE INDEX IF NOT EXISTS idx_evidence_items_checksum
	ON evidence_items(org_id, (type_metadata->>'checksum_sha256'))
	WHERE type = 'upload';
CREATE INDEX IF NOT EXISTS idx_evidence_items_fts
	ON evidence_items USING GIN (to_tsvector('english', title || ' ' || description));

CREATE TABLE IF NOT EXISTS evidence_mappings (
	id UUID PRIMARY KEY,
	evidence_id UUID NOT NULL REFERENCES evidence_items(id) ON DELETE CASCADE,
	version_id UUID NOT NULL REFERENCES system_versions(id) ON DELETE CASCADE,
	target_type TEXT NOT NULL,
	target_key TEXT NOT NULL,
	strength TEXT NOT NULL DEFAULT '',
	notes TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (evidence_id, version_id, target_type, target_key)
);
CREATE INDEX IF NOT EXISTS idx_evidence_mappings_version ON evidence_mappings(version_id);

CREATE TABLE IF NOT EXISTS exports (
	id UUID PRIMARY KEY,
	version_id UUID NOT NULL REFERENCES system_versions(id) ON DELETE CASCADE,
	export_type TEXT NOT NULL,
	snapshot_hash TEXT NOT NULL,
	storage_uri TEXT NOT NULL,
	file_size BIGINT NOT NULL,
	compare_version_id UUID REFERENCES system_versions(id) ON DELETE SET NULL,
	completeness_score NUMERIC NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_exports_version ON exports(version_id);

CREATE TABLE IF NOT EXISTS log_api_keys (
	id UUID PRIMARY KEY,
	version_id UUID NOT NULL REFERENCES system_versions(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	key_hash TEXT NOT NULL UNIQUE,
	allow_raw_pii BOOLEAN NOT NULL DEFAULT FALSE,
	revoked_at TIMESTAMPTZ,
	last_used_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS decision_logs (
	id UUID PRIMARY KEY,
	version_id UUID NOT NULL REFERENCES system_versions(id) ON DELETE CASCADE,
	event_id TEXT NOT NULL,
	event_time TIMESTAMPTZ NOT NULL,
	event_json JSONB NOT NULL,
	ingested_at TIMESTAMPTZ NOT NULL,
	UNIQUE (version_id, event_id)
);
CREATE INDEX IF NOT EXISTS idx_decision_logs_version_time ON decision_logs(version_id, event_time DESC);

CREATE TABLE IF NOT EXISTS audit_events (
	id UUID PRIMARY KEY,
	org_id UUID NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
	user_id UUID REFERENCES users(id) ON DELETE SET NULL,
	action TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id UUID NOT NULL,
	diff_json JSONB,
	ip TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_events_org ON audit_events(org_id, created_at DESC);

CREATE OR REPLACE FUNCTION reject_audit_mutation() RETURNS TRIGGER AS $$
BEGIN
	RAISE EXCEPTION 'audit_events is append-only';
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS audit_events_no_update ON audit_events;
CREATE TRIGGER audit_events_no_update
	BEFORE UPDATE OR DELETE ON audit_events
	FOR EACH ROW EXECUTE FUNCTION reject_audit_mutation();

CREATE TABLE IF NOT EXISTS high_risk_assessments (
	id UUID PRIMARY KEY,
	version_id UUID NOT NULL REFERENCES system_versions(id) ON DELETE CASCADE,
	answers JSONB NOT NULL,
	score NUMERIC NOT NULL,
	is_high_risk BOOLEAN NOT NULL,
	rationale JSONB NOT NULL DEFAULT '[]',
	created_by UUID NOT NULL REFERENCES users(id),
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_high_risk_assessments_version ON high_risk_assessments(version_id, created_at DESC, id DESC);

CREATE TABLE IF NOT EXISTS llm_interactions (
	id UUID PRIMARY KEY,
	version_id UUID NOT NULL REFERENCES system_versions(id) ON DELETE CASCADE,
	section_key TEXT NOT NULL,
	user_id UUID NOT NULL REFERENCES users(id),
	selected_evidence_ids UUID[] NOT NULL DEFAULT '{}',
	prompt TEXT NOT NULL,
	response TEXT NOT NULL,
	cited_evidence_ids UUID[] NOT NULL DEFAULT '{}',
	model TEXT NOT NULL DEFAULT '',
	input_tokens INT NOT NULL DEFAULT 0,
	output_tokens INT NOT NULL DEFAULT 0,
	strict_mode BOOLEAN NOT NULL DEFAULT FALSE,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_llm_interactions_version ON llm_interactions(version_id);
`

// Migrate applies the schema. Safe to call on every startup.
func Migrate(ctx context.Context, db Querier) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}
