package audit

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/labgate/labgate-core/internal/infrastructure/logging"
	"github.com/labgate/labgate-core/internal/infrastructure/mqtt"
	"github.com/labgate/labgate-core/internal/relay"
	"github.com/labgate/labgate-core/internal/telemetry"
)

// recordTimeout bounds each background record so a stuck sink cannot
// accumulate goroutines forever.
const recordTimeout = 5 * time.Second

// sourceRelay marks audit entries produced by the pairing relay.
const sourceRelay = "relay"

// AccessPublisher publishes resolved access decisions to door controllers.
type AccessPublisher interface {
	PublishAccess(ev mqtt.AccessEvent) error
}

// ResolutionWriter records resolved sessions for dashboards.
type ResolutionWriter interface {
	WriteResolution(res telemetry.Resolution)
}

// SlugResolver maps a lab display name to its stable slug.
type SlugResolver interface {
	LabSlug(ctx context.Context, labName string) (string, bool)
}

// Recorder receives relay lifecycle events and fans them out to the audit
// trail and the optional MQTT and telemetry sinks. Every method returns
// immediately: recording happens on background goroutines and failures
// are logged, never surfaced to the protocol.
type Recorder struct {
	repo        Repository
	access      AccessPublisher  // optional
	resolutions ResolutionWriter // optional
	slugs       SlugResolver     // optional
	logger      *logging.Logger

	wg sync.WaitGroup
}

// NewRecorder creates a recorder over the audit repository. The access
// publisher, resolution writer and slug resolver may each be nil.
func NewRecorder(repo Repository, access AccessPublisher, resolutions ResolutionWriter, slugs SlugResolver, logger *logging.Logger) *Recorder {
	return &Recorder{
		repo:        repo,
		access:      access,
		resolutions: resolutions,
		slugs:       slugs,
		logger:      logger,
	}
}

// SessionRegistered records a peer joining a pairing session.
func (r *Recorder) SessionRegistered(sessionID string, role relay.Role, userEmail, labName string) {
	r.async(func(ctx context.Context) {
		details := map[string]any{"role": string(role)}
		if labName != "" {
			details["lab_name"] = labName
		}
		r.create(ctx, &AuditLog{
			Action:    ActionSessionRegistered,
			SessionID: sessionID,
			UserEmail: userEmail,
			LabSlug:   r.resolveSlug(ctx, labName),
			Source:    sourceRelay,
			Details:   details,
		})
	})
}

// ProofAttached records a passkey ceremony result landing on a session.
func (r *Recorder) ProofAttached(sessionID string, kind relay.ProofKind) {
	r.async(func(ctx context.Context) {
		r.create(ctx, &AuditLog{
			Action:    ActionProofAttached,
			SessionID: sessionID,
			Source:    sourceRelay,
			Details:   map[string]any{"kind": string(kind)},
		})
	})
}

// SessionResolved records the terminal access decision, publishes it to
// the lab's access topic and writes the telemetry point.
func (r *Recorder) SessionResolved(ev relay.ResolvedEvent) {
	r.async(func(ctx context.Context) {
		labSlug := r.resolveSlug(ctx, ev.LabName)

		action := ActionAccessDenied
		if ev.Granted {
			action = ActionAccessGranted
		}

		granted := ev.Granted
		details := map[string]any{
			"mode":        string(ev.Mode),
			"duration_ms": ev.Duration.Milliseconds(),
		}
		if ev.Reason != "" {
			details["reason"] = ev.Reason
		}
		if ev.DistanceM != nil {
			details["distance_m"] = *ev.DistanceM
		}

		r.create(ctx, &AuditLog{
			Action:    action,
			SessionID: ev.SessionID,
			UserEmail: ev.UserEmail,
			LabSlug:   labSlug,
			Source:    sourceRelay,
			Success:   &granted,
			Details:   details,
		})

		if r.access != nil {
			err := r.access.PublishAccess(mqtt.AccessEvent{
				SessionID: ev.SessionID,
				UserEmail: ev.UserEmail,
				LabSlug:   labSlug,
				Mode:      string(ev.Mode),
				Granted:   ev.Granted,
				Reason:    ev.Reason,
				DistanceM: ev.DistanceM,
				DecidedAt: time.Now().UTC(),
			})
			if err != nil {
				r.logger.Warn("publishing access event failed",
					"session_id", ev.SessionID,
					"lab", labSlug,
					"error", err,
				)
			}
		}

		if r.resolutions != nil {
			r.resolutions.WriteResolution(telemetry.Resolution{
				LabSlug:    labSlug,
				Mode:       string(ev.Mode),
				Granted:    ev.Granted,
				DistanceM:  ev.DistanceM,
				DurationMs: ev.Duration.Milliseconds(),
				DecidedAt:  time.Now().UTC(),
			})
		}
	})
}

// Close waits for in-flight records to finish. Call during shutdown after
// the relay has stopped producing events.
func (r *Recorder) Close() {
	r.wg.Wait()
}

// async runs fn on a background goroutine with a bounded context.
func (r *Recorder) async(fn func(ctx context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// create persists one audit entry, logging failures instead of returning
// them.
func (r *Recorder) create(ctx context.Context, log *AuditLog) {
	if err := r.repo.Create(ctx, log); err != nil {
		r.logger.Warn("writing audit log failed",
			"action", log.Action,
			"session_id", log.SessionID,
			"error", err,
		)
	}
}

// resolveSlug maps a lab name to its configured slug, falling back to a
// slugified form of the name when the lab is unknown.
func (r *Recorder) resolveSlug(ctx context.Context, labName string) string {
	if labName == "" {
		return ""
	}
	if r.slugs != nil {
		if slug, ok := r.slugs.LabSlug(ctx, labName); ok {
			return slug
		}
	}
	return Slugify(labName)
}

// Slugify converts a display name into a topic-safe slug: lowercase,
// alphanumeric runs joined by single hyphens.
func Slugify(name string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
