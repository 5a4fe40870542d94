package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	refs  []EventRef
	calls int
}

func (f *fakeLister) ListEvents(_ context.Context, limit, offset int) ([]EventRef, error) {
	f.calls++
	if offset >= len(f.refs) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.refs) {
		end = len(f.refs)
	}
	return f.refs[offset:end], nil
}

type fakeRecomputer struct {
	recomputed []int64
	failFor    map[int64]error
}

func (f *fakeRecomputer) Recompute(_ context.Context, eventID int64) (int64, error) {
	if err, ok := f.failFor[eventID]; ok {
		return 0, err
	}
	f.recomputed = append(f.recomputed, eventID)
	return 0, nil
}

func refs(n int) []EventRef {
	out := make([]EventRef, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, EventRef{ID: int64(i + 1)})
	}
	return out
}

func TestRecountAll_WalksEveryEvent(t *testing.T) {
	lister := &fakeLister{refs: refs(5)}
	recomp := &fakeRecomputer{}
	r := NewRecounter(lister, recomp, 0, nil)

	r.recountAll(context.Background())

	assert.Equal(t, []int64{1, 2, 3, 4, 5}, recomp.recomputed)
}

func TestRecountAll_PagesPastOneHundred(t *testing.T) {
	lister := &fakeLister{refs: refs(250)}
	recomp := &fakeRecomputer{}
	r := NewRecounter(lister, recomp, 0, nil)

	r.recountAll(context.Background())

	require.Len(t, recomp.recomputed, 250)
	// 100 + 100 + 50; the short page ends the walk.
	assert.Equal(t, 3, lister.calls)
}

func TestRecountAll_SkipsFailingEvent(t *testing.T) {
	lister := &fakeLister{refs: refs(3)}
	recomp := &fakeRecomputer{failFor: map[int64]error{2: errors.New("store down")}}
	r := NewRecounter(lister, recomp, 0, nil)

	r.recountAll(context.Background())

	assert.Equal(t, []int64{1, 3}, recomp.recomputed)
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRecounter(&fakeLister{}, &fakeRecomputer{}, 0, nil)
	err := r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
