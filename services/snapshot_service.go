package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"referral-ledger/eligibility"
	"referral-ledger/ledger"
)

// Uploader stores an object and returns where it went.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, body []byte) (string, error)
}

// Snapshot is the exported driver-stats document.
type Snapshot struct {
	GeneratedAt time.Time             `json:"generated_at"`
	Thresholds  eligibility.Thresholds `json:"thresholds"`
	Drivers     []eligibility.Verdict  `json:"drivers"`
}

// SnapshotService exports the admin stats view to object storage.
type SnapshotService struct {
	Ledger     ledger.Ledger
	Uploader   Uploader
	Thresholds eligibility.Thresholds
	now        func() time.Time
}

func NewSnapshotService(l ledger.Ledger, u Uploader, t eligibility.Thresholds) *SnapshotService {
	return &SnapshotService{Ledger: l, Uploader: u, Thresholds: t, now: time.Now}
}

// Build evaluates every driver into a snapshot.
func (s *SnapshotService) Build(ctx context.Context) (Snapshot, error) {
	drivers, err := s.Ledger.ListDrivers(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{
		GeneratedAt: s.now().UTC(),
		Thresholds:  s.Thresholds,
		Drivers:     make([]eligibility.Verdict, 0, len(drivers)),
	}
	for _, d := range drivers {
		snap.Drivers = append(snap.Drivers, eligibility.Evaluate(d, s.Thresholds))
	}
	return snap, nil
}

// Export builds a snapshot and uploads it as JSON.
func (s *SnapshotService) Export(ctx context.Context) (string, error) {
	snap, err := s.Build(ctx)
	if err != nil {
		return "", fmt.Errorf("build snapshot: %w", err)
	}
	body, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	key := "snapshots/drivers-" + snap.GeneratedAt.Format("20060102-150405") + ".json"
	loc, err := s.Uploader.Upload(ctx, key, "application/json", body)
	if err != nil {
		return "", err
	}
	log.Printf("✅ [Snapshot] Exported %d driver(s) to %s", len(snap.Drivers), loc)
	return loc, nil
}
