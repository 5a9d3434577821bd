package app

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
)

// Member binds a participant's meta to its negotiation link.
type Member struct {
	Meta *domain.Participant
	Link *Link
}

// Registry owns the membership set of one session. It is not self-locking:
// the owning session serializes all access (see Session.mu).
type Registry struct {
	order []domain.ParticipantID
	byID  map[domain.ParticipantID]*Member
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[domain.ParticipantID]*Member)}
}

func (r *Registry) Add(id domain.ParticipantID, link *Link) (*Member, error) {
	if _, ok := r.byID[id]; ok {
		return nil, core.ErrDuplicateParticipant
	}
	meta, err := domain.NewParticipant(id)
	if err != nil {
		return nil, err
	}
	m := &Member{Meta: meta, Link: link}
	r.byID[id] = m
	r.order = append(r.order, id)
	log.Info().Str("module", "app.registry").Str("participant", string(id)).Msg("member added")
	return m, nil
}

func (r *Registry) Remove(id domain.ParticipantID) error {
	if _, ok := r.byID[id]; !ok {
		return core.ErrNotFound
	}
	delete(r.byID, id)
	for i, pid := range r.order {
		if pid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	log.Info().Str("module", "app.registry").Str("participant", string(id)).Msg("member removed")
	return nil
}

func (r *Registry) Get(id domain.ParticipantID) (*Member, bool) {
	m, ok := r.byID[id]
	return m, ok
}

func (r *Registry) Len() int { return len(r.byID) }

// Snapshot returns the live set in insertion order. The slice is a copy;
// callers never see internal state.
func (r *Registry) Snapshot() []domain.Participant {
	out := make([]domain.Participant, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.byID[id].Meta)
	}
	return out
}

// Members returns live members in insertion order for internal iteration.
func (r *Registry) Members() []*Member {
	out := make([]*Member, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}
