package lexicon

import (
	"context"
	"errors"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/factsearch/internal/cache"
	"github.com/sells-group/factsearch/internal/model"
	"github.com/sells-group/factsearch/internal/store"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) GetLexicon(ctx context.Context, id int64) (*model.Lexicon, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*model.Lexicon), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSource) GetConcept(ctx context.Context, id int64) (*model.Concept, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*model.Concept), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestResolve_PlainToken(t *testing.T) {
	src := &mockSource{}
	r := NewResolver(src, nil)

	got, err := r.Resolve(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, got)
	src.AssertNotCalled(t, "GetLexicon", mock.Anything, mock.Anything)
}

func TestResolve_NotAReference(t *testing.T) {
	r := NewResolver(&mockSource{}, nil)

	for _, tok := range []string{"@C-foo", "@Lx-foo", "C12-foo", "@C12foo", "x@L1-y"} {
		got, err := r.Resolve(context.Background(), tok)
		require.NoError(t, err)
		assert.Equal(t, []string{tok}, got, tok)
	}
}

func TestResolve_Lexicon(t *testing.T) {
	src := &mockSource{}
	src.On("GetLexicon", mock.Anything, int64(3)).
		Return(&model.Lexicon{ID: 3, Words: []string{"cat", "dog"}}, nil).Once()

	r := NewResolver(src, cache.New(100, 0))
	for i := 0; i < 3; i++ {
		got, err := r.Resolve(context.Background(), "@L3-animals")
		require.NoError(t, err)
		assert.Equal(t, []string{"cat", "dog"}, got)
	}
	src.AssertExpectations(t)
}

func TestResolve_Concept(t *testing.T) {
	src := &mockSource{}
	src.On("GetConcept", mock.Anything, int64(12)).
		Return(&model.Concept{ID: 12, Terms: []string{"tallinn", "riga"}}, nil)

	r := NewResolver(src, nil)
	got, err := r.Resolve(context.Background(), "@C12-capitals")
	require.NoError(t, err)
	assert.Equal(t, []string{"tallinn", "riga"}, got)
}

func TestResolve_MissingReference(t *testing.T) {
	src := &mockSource{}
	src.On("GetConcept", mock.Anything, int64(5)).
		Return(nil, eris.Wrap(store.ErrNotFound, "sqlite: concept 5"))

	r := NewResolver(src, nil)
	got, err := r.Resolve(context.Background(), "@C5-gone")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestResolve_SourceError(t *testing.T) {
	src := &mockSource{}
	src.On("GetLexicon", mock.Anything, int64(1)).Return(nil, errors.New("connection refused"))

	r := NewResolver(src, cache.New(10, 0))
	_, err := r.Resolve(context.Background(), "@L1-x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestResolve_Invalidate(t *testing.T) {
	src := &mockSource{}
	src.On("GetLexicon", mock.Anything, int64(3)).
		Return(&model.Lexicon{ID: 3, Words: []string{"cat"}}, nil).Twice()

	r := NewResolver(src, cache.New(100, 0))
	_, err := r.Resolve(context.Background(), "@L3-a")
	require.NoError(t, err)
	r.Invalidate()
	_, err = r.Resolve(context.Background(), "@L3-a")
	require.NoError(t, err)
	src.AssertExpectations(t)
}
