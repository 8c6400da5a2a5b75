// Package client is the per-viewer core behind the UI shell: paginated
// views kept in a query cache, optimistic mutations with centralized cache
// patches, tap gestures and the shared application state.
package client

import (
	"context"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"socialclient/pkg/backend"
	"socialclient/pkg/gesture"
	"socialclient/pkg/ids"
	"socialclient/pkg/model"
	"socialclient/pkg/mutation"
	"socialclient/pkg/notify"
	"socialclient/pkg/pagination"
	"socialclient/pkg/querycache"
	"socialclient/pkg/repository"
)

type Options struct {
	Repository *repository.Repository
	Objects    backend.ObjectStore
	// Pusher, when set, receives the session's notifications; the session
	// keeps them locally otherwise.
	Pusher   notify.Pusher
	Logger   *slog.Logger
	Cache    []querycache.Option
	Gestures []gesture.Option
}

type Session struct {
	viewerID string
	repo     *repository.Repository
	objects  backend.ObjectStore
	cache    *querycache.Cache
	engine   *mutation.Engine
	center   *notify.Center
	reporter mutation.Reporter
	state    *State
	logger   *slog.Logger
	gestures []gesture.Option
	now      func() time.Time

	mu            sync.Mutex
	feed          *pagination.Coordinator[model.Post]
	conversations *pagination.Coordinator[model.Conversation]
	comments      map[string]*pagination.Coordinator[model.Comment]
	replies       map[string]*pagination.Coordinator[model.Comment]
	taps          map[string]gesture.Binding
	watches       map[string]backend.Unsubscribe
}

func NewSession(viewerID string, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("viewer", viewerID)
	center := notify.NewCenter()
	var reporter mutation.Reporter = center
	if opts.Pusher != nil {
		reporter = notify.NewForwarder(viewerID, opts.Pusher, center)
	}
	cache := querycache.New(opts.Cache...)
	s := &Session{
		viewerID: viewerID,
		repo:     opts.Repository,
		objects:  opts.Objects,
		cache:    cache,
		engine:   mutation.NewEngine(cache, reporter, logger),
		center:   center,
		reporter: reporter,
		state:    &State{},
		logger:   logger,
		gestures: opts.Gestures,
		now:      time.Now,
		comments: make(map[string]*pagination.Coordinator[model.Comment]),
		replies:  make(map[string]*pagination.Coordinator[model.Comment]),
		taps:     make(map[string]gesture.Binding),
		watches:  make(map[string]backend.Unsubscribe),
	}
	s.feed = pagination.New[model.Post](cache, keyFeed, pagination.POSTS_PER_PAGE,
		func(ctx context.Context, page int) (pagination.Page[model.Post], error) {
			return s.repo.Posts.FeedPage(ctx, s.viewerID, page, pagination.POSTS_PER_PAGE)
		}, postID)
	s.conversations = pagination.New[model.Conversation](cache, keyConversations, pagination.CONVERSATIONS_PER_PAGE,
		func(ctx context.Context, page int) (pagination.Page[model.Conversation], error) {
			return s.repo.Conversations.Page(ctx, s.viewerID, page, pagination.CONVERSATIONS_PER_PAGE)
		}, conversationID)
	return s
}

func (s *Session) ViewerID() string { return s.viewerID }

func (s *Session) State() *State { return s.state }

// Notifications returns the notifications raised since the last call.
func (s *Session) Notifications() []notify.Notification {
	return s.center.Drain()
}

// Close cancels pending taps and live subscriptions and forgets everything
// the session cached.
func (s *Session) Close() {
	s.mu.Lock()
	for _, b := range s.taps {
		b.Cancel()
	}
	for _, unsubscribe := range s.watches {
		unsubscribe()
	}
	s.taps = make(map[string]gesture.Binding)
	s.watches = make(map[string]backend.Unsubscribe)
	s.comments = make(map[string]*pagination.Coordinator[model.Comment])
	s.replies = make(map[string]*pagination.Coordinator[model.Comment])
	s.mu.Unlock()

	s.cache.Clear()
	s.engine.Reset()
	s.state.Reset()
	s.center.Drain()
}

// report hands a failed read to the notification path and returns it.
func (s *Session) report(ctx context.Context, label string, err error) error {
	if err != nil {
		s.logger.Error("error "+label, "msg", err.Error())
		s.reporter.Report(ctx, label, err)
	}
	return err
}

// tap returns the gesture binding of an entity, creating it on first use.
func (s *Session) tap(entity string, onDouble func(), onSingle func()) gesture.Binding {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.taps[entity]; ok {
		return b
	}
	opts := append([]gesture.Option(nil), s.gestures...)
	if onSingle != nil {
		opts = append(opts, gesture.OnSingle(onSingle))
	}
	b := gesture.Bind(onDouble, opts...)
	s.taps[entity] = b
	return b
}

func postID(p model.Post) string                 { return p.ID }
func commentID(c model.Comment) string           { return c.ID }
func conversationID(c model.Conversation) string { return c.ID }

// Feed returns the feed, fetching its first page when needed.
func (s *Session) Feed(ctx context.Context) ([]model.Post, error) {
	s.logger.Debug("entering Feed")
	posts, err := s.feed.Load(ctx)
	return posts, s.report(ctx, "getPosts", err)
}

// NextFeedPage fetches the next feed page. It reports false at the end of
// the feed.
func (s *Session) NextFeedPage(ctx context.Context) (bool, error) {
	s.logger.Debug("entering NextFeedPage", "cursor", s.feed.Snapshot().Cursor())
	fetched, err := s.feed.LoadNext(ctx)
	return fetched, s.report(ctx, "getPosts", err)
}

func (s *Session) RefreshFeed(ctx context.Context) ([]model.Post, error) {
	s.logger.Debug("entering RefreshFeed")
	posts, err := s.feed.Refresh(ctx)
	return posts, s.report(ctx, "getPosts", err)
}

func (s *Session) FeedItems() []model.Post { return s.feed.Items() }

func (s *Session) FeedEnd() bool { return s.feed.End() }

// Post returns a post from the cache, fetching it when not cached.
func (s *Session) Post(ctx context.Context, id string) (model.Post, error) {
	if p, ok := s.cachedPost(id); ok {
		return p, nil
	}
	p, err := s.repo.Posts.Get(ctx, s.viewerID, id)
	if err != nil {
		return model.Post{}, s.report(ctx, "getPost", err)
	}
	s.cache.Set(postKey(id), p)
	return p, nil
}

func (s *Session) cachedPost(id string) (model.Post, bool) {
	if p, ok := querycache.Lookup[model.Post](s.cache, postKey(id)); ok {
		return p, true
	}
	_, p, ok := s.feed.Snapshot().Locate(func(p model.Post) bool { return p.ID == id })
	return p, ok
}

// IsPostLiked reports the viewer's like state of a post as shown by the
// client.
func (s *Session) IsPostLiked(id string) bool {
	if on, ok := s.engine.State(postEntity(id)); ok {
		return on
	}
	p, ok := s.cachedPost(id)
	return ok && p.Like != nil
}

// TogglePostLike likes or unlikes a post. It returns the new like state.
func (s *Session) TogglePostLike(ctx context.Context, id string) (bool, error) {
	s.logger.Debug("entering TogglePostLike", "post_id", id)
	return s.engine.Toggle(ctx, mutation.Toggle{
		Label:   "likePost",
		Entity:  postEntity(id),
		Initial: func() bool { return s.IsPostLiked(id) },
		On:      func(ctx context.Context) error { return s.repo.Posts.Like(ctx, id, s.viewerID) },
		Off:     func(ctx context.Context) error { return s.repo.Posts.Unlike(ctx, id, s.viewerID) },
		Patch:   func(on bool) mutation.Patch { return postLike(id, s.viewerID, on) },
	})
}

// TapPost feeds one tap on a post: a double tap likes it, a single tap
// opens it.
func (s *Session) TapPost(id string) {
	b := s.tap(postEntity(id),
		func() { s.TogglePostLike(context.Background(), id) },
		func() { s.state.SetViewedPost(id) },
	)
	if b.OnPress != nil {
		b.OnPress()
	}
}

func (s *Session) DeletePost(ctx context.Context, id string) error {
	s.logger.Debug("entering DeletePost", "post_id", id)
	owner, albumID := s.viewerID, ""
	if p, ok := s.cachedPost(id); ok {
		owner, albumID = p.AccountID, p.AlbumID
	}
	err := s.engine.Run(ctx, mutation.Mutation{
		Label:  "deletePost",
		Entity: postEntity(id),
		Remote: func(ctx context.Context) error { return s.repo.Posts.Delete(ctx, id) },
		Patch: mutation.Patches{
			removal(keyFeed, func(p model.Post) bool { return p.ID == id }),
			drop(postKey(id)),
			postUnlisted(owner, albumID, id),
		},
	})
	if err != nil {
		return err
	}
	s.engine.Forget(postEntity(id))
	s.cache.Remove(commentsKey(id))
	if s.state.ViewedPost() == id {
		s.state.SetViewedPost("")
	}
	return nil
}

// Image is a picture picked in the shell.
type Image struct {
	Data        []byte
	Filename    string
	ContentType string
	Placeholder string
}

type NewPost struct {
	AlbumID  string
	Caption  string
	Location string
	Images   []Image
}

// CreatePost uploads the images of a post, then stores the post and its
// media. The post shows on the feed once the server accepted it.
func (s *Session) CreatePost(ctx context.Context, np NewPost) (model.Post, error) {
	s.logger.Debug("entering CreatePost", "album_id", np.AlbumID, "num_images", len(np.Images))
	var created model.Post
	err := s.engine.Run(ctx, mutation.Mutation{
		Label:    "createPost",
		AfterAck: true,
		Remote: func(ctx context.Context) error {
			media := make([]repository.NewMedia, 0, len(np.Images))
			for _, img := range np.Images {
				name := ids.UUID() + strings.ToLower(path.Ext(img.Filename))
				if err := s.objects.Upload(ctx, repository.BucketPosts, name, img.Data, img.ContentType); err != nil {
					return backend.Label("uploadPostMedia", err)
				}
				media = append(media, repository.NewMedia{Path: name, Placeholder: img.Placeholder})
			}
			var err error
			created, err = s.repo.Posts.Create(ctx, repository.NewPost{
				AccountID: s.viewerID,
				AlbumID:   np.AlbumID,
				Caption:   np.Caption,
				Location:  np.Location,
				Media:     media,
			})
			return err
		},
		Patch: postAdded(&created),
	})
	if err != nil {
		return model.Post{}, err
	}
	if np.AlbumID != "" {
		s.cache.Remove(albumMediaKey(np.AlbumID))
		s.cache.Remove(accountKey(s.viewerID))
	}
	return created, nil
}

// AlbumMedia lists the media of every post in an album.
func (s *Session) AlbumMedia(ctx context.Context, albumID string) ([]model.Media, error) {
	if media, ok := querycache.Lookup[[]model.Media](s.cache, albumMediaKey(albumID)); ok {
		return media, nil
	}
	media, err := s.repo.Albums.Media(ctx, albumID)
	if err != nil {
		return nil, s.report(ctx, "getAlbumMedia", err)
	}
	s.cache.Set(albumMediaKey(albumID), media)
	return media, nil
}

func (s *Session) CreateAlbum(ctx context.Context, name string) (model.Album, error) {
	var created model.Album
	err := s.engine.Run(ctx, mutation.Mutation{
		Label:    "createAlbum",
		AfterAck: true,
		Remote: func(ctx context.Context) error {
			var err error
			created, err = s.repo.Albums.Create(ctx, s.viewerID, name)
			return err
		},
		Patch: mutation.Funcs{OnApply: func(c *querycache.Cache) {
			querycache.Modify(c, accountKey(s.viewerID), func(u model.User) model.User {
				u.Albums = append([]model.Album{created}, u.Albums...)
				u.Stat.TripCount++
				return u
			})
		}},
	})
	return created, err
}
