package store

import (
	"time"

	"github.com/CodedInternet/sentrygun/onboard"
	"github.com/CodedInternet/sentrygun/onboard/hardware"
	"github.com/asdine/storm/v3"
	"github.com/asdine/storm/v3/index"
)

const (
	JOURNAL_BUCKET = "journal"
	snapshotID     = 1
)

// StateSnapshot is the single most recent turret state. It is overwritten in place.
type StateSnapshot struct {
	ID        int `storm:"id"`
	State     hardware.TurretState
	UpdatedAt time.Time
}

// ShotRecord is one closing of the fire relay.
type ShotRecord struct {
	ID   int       `storm:"id,increment"`
	At   time.Time `storm:"index"`
	Pan  int
	Tilt int
}

// Journal persists turret state and shots in their own bucket of a storm database,
// leaving the rest of the file to whoever else shares it.
type Journal struct {
	node storm.Node
}

func NewJournal(db *storm.DB) (j *Journal, err error) {
	j = &Journal{node: db.From(JOURNAL_BUCKET)}

	if err = j.node.Init(&StateSnapshot{}); err != nil {
		return nil, err
	}
	if err = j.node.Init(&ShotRecord{}); err != nil {
		return nil, err
	}
	return j, nil
}

// LastState returns the most recently recorded state; ok is false for a fresh
// database.
func (j *Journal) LastState() (state hardware.TurretState, ok bool, err error) {
	var snap StateSnapshot
	if err = j.node.One("ID", snapshotID, &snap); err != nil {
		if err == storm.ErrNotFound {
			return state, false, nil
		}
		return state, false, err
	}
	return snap.State, true, nil
}

func (j *Journal) RecordState(state hardware.TurretState) error {
	return j.node.Save(&StateSnapshot{ID: snapshotID, State: state, UpdatedAt: time.Now().UTC()})
}

func (j *Journal) RecordShot(shot onboard.Shot) error {
	return j.node.Save(&ShotRecord{At: shot.At, Pan: shot.Pan, Tilt: shot.Tilt})
}

// Shots returns up to limit shots, newest first. A limit of zero or less returns
// every shot.
func (j *Journal) Shots(limit int) (shots []onboard.Shot, err error) {
	var records []ShotRecord

	options := []func(*index.Options){storm.Reverse()}
	if limit > 0 {
		options = append(options, storm.Limit(limit))
	}

	if err = j.node.All(&records, options...); err != nil {
		return nil, err
	}

	shots = make([]onboard.Shot, 0, len(records))
	for _, r := range records {
		shots = append(shots, onboard.Shot{At: r.At, Pan: r.Pan, Tilt: r.Tilt})
	}
	return shots, nil
}

func (j *Journal) ShotCount() (int, error) {
	return j.node.Count(&ShotRecord{})
}
