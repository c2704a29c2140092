package repository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/syssam/objectcore"
	"github.com/syssam/objectcore/actions"
	"github.com/syssam/objectcore/driver"
	"github.com/syssam/objectcore/driver/memdriver"
	"github.com/syssam/objectcore/hooks"
	"github.com/syssam/objectcore/metadata"
	"github.com/syssam/objectcore/repository"
	"github.com/syssam/objectcore/validation"
)

func newDispatcher(t *testing.T) *repository.Dispatcher {
	t.Helper()
	reg := metadata.New()

	author := metadata.NewObject("authors")
	author.WithField(metadata.String("name").Required())
	reg.RegisterObject("test", author)

	post := metadata.NewObject("posts")
	post.WithField(metadata.String("title").Required()).
		WithField(metadata.Lookup("author_id", "authors").Required())
	reg.RegisterObject("test", post)

	mem := memdriver.New()
	require.NoError(t, mem.Connect(context.Background()))
	t.Cleanup(func() { _ = mem.Disconnect(context.Background()) })

	return repository.New(reg, map[string]driver.Driver{"default": mem}, hooks.New(), validation.New(), actions.New())
}

func TestRepositoryFindExpandsRelationshipField(t *testing.T) {
	d := newDispatcher(t)
	ctx := context.Background()
	reqCtx := repository.RequestContext{UserID: "u1"}

	author, err := d.Object("authors", reqCtx).Create(ctx, objectcore.Record{"name": "Ada Lovelace"})
	require.NoError(t, err)
	authorID, _ := author.ID()

	_, err = d.Object("posts", reqCtx).Create(ctx, objectcore.Record{"title": "On the Analytical Engine", "author_id": authorID})
	require.NoError(t, err)

	q := objectcore.NewQuery("posts")
	q.Expand = objectcore.Expand{"author_id": objectcore.NewQuery("authors")}

	posts, err := d.Object("posts", reqCtx).Find(ctx, q)
	require.NoError(t, err)
	require.Len(t, posts, 1)

	related, ok := posts[0]["author_id"].(objectcore.Record)
	require.True(t, ok, "expand should replace the foreign key with the related record")
	require.Equal(t, "Ada Lovelace", related["name"])
}

func TestRepositoryCreateRequiresRequiredField(t *testing.T) {
	d := newDispatcher(t)
	ctx := context.Background()
	reqCtx := repository.RequestContext{UserID: "u1"}

	_, err := d.Object("authors", reqCtx).Create(ctx, objectcore.Record{})
	require.Error(t, err)
}
