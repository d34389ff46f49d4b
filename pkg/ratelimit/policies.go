package ratelimit

// Policies named in the spec's concurrency and resource model. Burst is set
// equal to the per-window quota so a client can spend its whole window's
// budget immediately rather than trickle it out.
var (
	LoginPolicy      = BackpressurePolicy{RPM: 10, Burst: 10}
	InvitationPolicy = BackpressurePolicy{RPM: 5, Burst: 5, WindowSeconds: 3600}
	LLMDraftPolicy   = BackpressurePolicy{RPM: 30, Burst: 30}
)

// ActorKeyFor scopes a rate-limit bucket to an organization and action, so a
// single tenant's login attempts don't starve another tenant's budget.
func ActorKeyFor(orgID, action string) string {
	return action + ":" + orgID
}
