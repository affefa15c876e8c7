// Package exportengine implements the Export Engine (spec §4.2, C4):
// orchestrates the Gateway, Rate Governor, and State Store into one
// resumable, rate-aware pagination loop, normalizes records, validates
// the result, and writes the export artifact atomically.
package exportengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bookmarkctl/bookmarkctl/internal/artifactwriter"
	"github.com/bookmarkctl/bookmarkctl/internal/bookmarkerr"
	"github.com/bookmarkctl/bookmarkctl/internal/dedupindex"
	"github.com/bookmarkctl/bookmarkctl/internal/exportstate"
	"github.com/bookmarkctl/bookmarkctl/internal/gateway"
	"github.com/bookmarkctl/bookmarkctl/internal/logging"
	"github.com/bookmarkctl/bookmarkctl/internal/model"
	"github.com/bookmarkctl/bookmarkctl/internal/progress"
	"github.com/bookmarkctl/bookmarkctl/internal/ratelimit"
	"github.com/bookmarkctl/bookmarkctl/internal/schema"
)

// Config tunes the Export Engine's run.
type Config struct {
	OutputDir       string
	ExporterVersion string
	Resume          bool
}

// Engine orchestrates C1 (Gateway) + C2 (Rate Governor) + C3 (State
// Store) per spec §4.2.
type Engine struct {
	gw        gateway.Gateway
	governor  *ratelimit.Governor
	state     *exportstate.Store
	validator *schema.Validator
	log       logging.Sink
	sink      progress.Sink
	cfg       Config
	now       func() time.Time
}

// New wires the Export Engine's collaborators.
func New(gw gateway.Gateway, governor *ratelimit.Governor, state *exportstate.Store, validator *schema.Validator, log logging.Sink, sink progress.Sink, cfg Config) *Engine {
	return &Engine{gw: gw, governor: governor, state: state, validator: validator, log: log, sink: sink, cfg: cfg, now: time.Now}
}

// Run executes the full export algorithm (spec §4.2 steps 1-7) and
// returns the path of the written artifact.
func (e *Engine) Run(ctx context.Context, credentials string) (string, error) {
	token, err := e.gw.Authenticate(ctx, credentials)
	if err != nil {
		return "", bookmarkerr.New(bookmarkerr.KindCredential, "exportengine.authenticate", err)
	}

	identity, err := e.gw.GetUser(ctx, token)
	if err != nil {
		return "", bookmarkerr.New(bookmarkerr.KindCredential, "exportengine.getuser", err)
	}

	idx, err := dedupindex.Open()
	if err != nil {
		return "", bookmarkerr.New(bookmarkerr.KindFilesystem, "exportengine.dedupindex", err)
	}
	defer idx.Close()

	var cursor string
	var processedCount int
	startTime := e.now()
	var records []model.Record
	sessionID := uuid.NewString()

	if e.cfg.Resume {
		if marker, ok := e.state.Load(); ok {
			cursor = marker.LastCursor
			processedCount = marker.ProcessedCount
			if parsed, err := time.Parse(time.RFC3339, marker.StartTime); err == nil {
				startTime = parsed
			}
			if marker.SessionID != "" {
				sessionID = marker.SessionID
			}
			records = e.state.LoadRecords()
			for _, rec := range records {
				if _, err := idx.SeenID(rec.ID); err != nil {
					return "", bookmarkerr.New(bookmarkerr.KindFilesystem, "exportengine.dedup", err)
				}
			}
		}
	}

	e.info("exportengine.session", fmt.Sprintf("session %s started (resume=%v, credentials=%s)", sessionID, e.cfg.Resume, logging.ObfuscateSecret(credentials)), sessionID)

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		if err := e.governor.BeforeRequest(ctx); err != nil {
			return "", bookmarkerr.New(bookmarkerr.KindRateLimit, "exportengine.beforerequest", err)
		}

		page, err := e.gw.GetBookmarks(ctx, token, cursor)
		if err != nil {
			if errors.Is(err, bookmarkerr.ErrProtocol) {
				return "", bookmarkerr.New(bookmarkerr.KindProtocol, "exportengine.getbookmarks", err)
			}
			outcome := classifyOutcome(err)
			e.governor.Observe(gateway.RateLimit{}, outcome)
			if outcome == ratelimit.OutcomeCredential {
				return "", bookmarkerr.New(bookmarkerr.KindCredential, "exportengine.getbookmarks", err)
			}
			// Transient: the next BeforeRequest applies backoff and returns a
			// terminal error once the retry budget is spent.
			e.warn("exportengine.getbookmarks", "", fmt.Sprintf("transient failure, retrying: %v", err))
			continue
		}
		e.governor.Observe(page.RateLimit, ratelimit.OutcomeSuccess)

		for _, raw := range page.Records {
			seen, err := idx.SeenID(raw.ID)
			if err != nil {
				return "", bookmarkerr.New(bookmarkerr.KindFilesystem, "exportengine.dedup", err)
			}
			if seen {
				e.warn("exportengine.duplicate", raw.ID, fmt.Sprintf("duplicate id %q skipped", raw.ID))
				continue
			}
			records = append(records, normalize(raw))
			processedCount++
		}

		e.sink.Report(progress.Event{Processed: processedCount, Op: "export"})

		if err := e.state.SaveRecords(records); err != nil {
			return "", bookmarkerr.New(bookmarkerr.KindFilesystem, "exportengine.saverecords", err)
		}
		if err := e.state.Save(model.StateMarker{
			LastCursor:     page.NextCursor,
			ProcessedCount: processedCount,
			StartTime:      startTime.UTC().Format(time.RFC3339),
			APIVersion:     e.cfg.ExporterVersion,
			SessionID:      sessionID,
		}); err != nil {
			return "", bookmarkerr.New(bookmarkerr.KindFilesystem, "exportengine.savestate", err)
		}

		if page.NextCursor == "" {
			break
		}

		repeated, err := idx.SeenCursor(page.NextCursor)
		if err != nil {
			return "", bookmarkerr.New(bookmarkerr.KindFilesystem, "exportengine.dedup", err)
		}
		if repeated {
			e.warn("exportengine.cursor-repetition", "", fmt.Sprintf("cursor %q repeated, terminating pagination", page.NextCursor))
			break
		}
		cursor = page.NextCursor
	}

	if records == nil {
		records = []model.Record{}
	}

	artifact := model.ExportArtifact{
		Metadata: model.ExportMetadata{
			ExportTimestamp: e.now().UTC().Format(time.RFC3339),
			TotalCount:      len(records),
			ExporterVersion: e.cfg.ExporterVersion,
			UserID:          identity.UserID,
			Username:        identity.Username,
		},
		Bookmarks: records,
	}

	if ok, errs := e.validator.Validate(artifact, schema.KindExport); !ok {
		return "", bookmarkerr.New(bookmarkerr.KindSchema, "exportengine.validate", fmt.Errorf("export artifact failed schema validation: %v", errs))
	}

	data, err := model.MarshalIndent(artifact)
	if err != nil {
		return "", bookmarkerr.New(bookmarkerr.KindFilesystem, "exportengine.marshal", err)
	}

	basename, err := artifactwriter.Basename(e.cfg.OutputDir, "export", e.now())
	if err != nil {
		return "", bookmarkerr.New(bookmarkerr.KindFilesystem, "exportengine.basename", err)
	}
	path, err := artifactwriter.Write(e.cfg.OutputDir, basename, data)
	if err != nil {
		return "", bookmarkerr.New(bookmarkerr.KindFilesystem, "exportengine.write", err)
	}

	if err := e.state.Clear(); err != nil {
		return "", bookmarkerr.New(bookmarkerr.KindFilesystem, "exportengine.clearstate", err)
	}
	if err := e.state.ClearRecords(); err != nil {
		return "", bookmarkerr.New(bookmarkerr.KindFilesystem, "exportengine.clearrecords", err)
	}

	e.sink.Summary(fmt.Sprintf("export complete: %d bookmarks written to %s", len(records), path))
	return path, nil
}

// normalize maps a gateway.RawRecord to model.Record, carrying each
// optional field's presence or absence straight through as a pointer:
// a field the remote never supplied stays nil and marshals as a true
// JSON null, matching export.schema.json's ["string", "null"] union.
// An empty string from the remote is preserved as an empty string, not
// folded into null; the two are distinct values, not the same thing.
func normalize(raw gateway.RawRecord) model.Record {
	var createdAt *string
	if raw.CreatedAt != nil {
		formatted := raw.CreatedAt.UTC().Format(time.RFC3339)
		createdAt = &formatted
	}
	return model.Record{
		ID:             raw.ID,
		URL:            raw.URL,
		Text:           raw.Text,
		AuthorUsername: raw.AuthorUsername,
		AuthorName:     raw.AuthorName,
		CreatedAt:      createdAt,
		LikeCount:      raw.LikeCount,
		RetweetCount:   raw.RetweetCount,
		ReplyCount:     raw.ReplyCount,
	}
}

// classifyOutcome buckets a Gateway error into a ratelimit.Outcome.
func classifyOutcome(err error) ratelimit.Outcome {
	if errors.Is(err, bookmarkerr.ErrCredential) {
		return ratelimit.OutcomeCredential
	}
	return ratelimit.OutcomeTransient
}

func (e *Engine) warn(op, recordID, msg string) {
	if e.log == nil {
		return
	}
	ctx := map[string]interface{}{"message": msg}
	e.log.Log(logging.Event{Level: logging.LevelWarn, Op: op, RecordID: recordID, Context: ctx})
}

func (e *Engine) info(op, msg, sessionID string) {
	if e.log == nil {
		return
	}
	e.log.Log(logging.Event{Level: logging.LevelInfo, Op: op, Context: map[string]interface{}{"message": msg, "session": sessionID}})
}
