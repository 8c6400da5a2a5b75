// Command seed fills a store with demo accounts, follows, posts, likes and
// comments so the gateway has something to page through.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"socialclient/pkg/auth"
	"socialclient/pkg/repository"
	"socialclient/pkg/storage"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type properties struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"INFO"`

	Store  storeProperties `envPrefix:"SEED_"`
	Counts countProperties `envPrefix:"SEED_"`
}

type storeProperties struct {
	Driver        string `env:"STORE_DRIVER" envDefault:"mongodb"`
	MongoDBAddr   string `env:"MONGODB_ADDRESS" envDefault:"localhost"`
	MongoDBPort   int    `env:"MONGODB_PORT" envDefault:"27017"`
	MongoDBName   string `env:"MONGODB_DATABASE" envDefault:"socialclient"`
	PostgresURL   string `env:"POSTGRES_URL"`
	Password      string `env:"PASSWORD" envDefault:"password"`
	EmailDomain   string `env:"EMAIL_DOMAIN" envDefault:"example.com"`
	UsernameStart int    `env:"USERNAME_START" envDefault:"0"`
}

type countProperties struct {
	Users           int `env:"USERS" envDefault:"20"`
	PostsPerUser    int `env:"POSTS_PER_USER" envDefault:"5"`
	CommentsPerPost int `env:"COMMENTS_PER_POST" envDefault:"3"`
	FollowsPerUser  int `env:"FOLLOWS_PER_USER" envDefault:"5"`
}

func readProperties() (*properties, error) {
	config := &properties{}
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("read config error: %w", err)
	}
	return config, nil
}

var errEphemeralStore = errors.New("the memory driver keeps nothing once seed exits; pass -dry-run to seed it anyway")

// checkDriver rejects seeding an in-process store unless the run is a dry run.
func checkDriver(driver string, dryRun bool) error {
	if (driver == "" || driver == storage.DRIVER_MEMORY) && !dryRun {
		return errEphemeralStore
	}
	return nil
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}
	config, err := readProperties()
	if err != nil {
		log.Fatal(err)
	}
	// flags override the environment
	flag.StringVar(&config.Store.Driver, "driver", config.Store.Driver, "store driver: mongodb | postgres | memory (dry run only)")
	dryRun := flag.Bool("dry-run", false, "allow the memory driver; the seeded data is discarded on exit")
	flag.IntVar(&config.Counts.Users, "users", config.Counts.Users, "number of users")
	flag.IntVar(&config.Counts.PostsPerUser, "posts", config.Counts.PostsPerUser, "posts per user")
	flag.IntVar(&config.Counts.CommentsPerPost, "comments", config.Counts.CommentsPerPost, "comments per post")
	flag.IntVar(&config.Counts.FollowsPerUser, "follows", config.Counts.FollowsPerUser, "accounts each user follows")
	seed := flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flag.Parse()
	if err := checkDriver(config.Store.Driver, *dryRun); err != nil {
		log.Fatal(err)
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(config.LogLevel)); err != nil {
		log.Fatalf("invalid LOG_LEVEL %q", config.LogLevel)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx := context.Background()
	store, release, err := storage.OpenStore(ctx, storage.Options{
		Driver:      config.Store.Driver,
		MongoDBAddr: config.Store.MongoDBAddr,
		MongoDBPort: config.Store.MongoDBPort,
		MongoDBName: config.Store.MongoDBName,
		PostgresURL: config.Store.PostgresURL,
	}, logger)
	if err != nil {
		logger.Error("error opening store", "msg", err.Error())
		os.Exit(1)
	}
	defer release()

	repo := repository.New(store, nil)
	s := &seeder{
		repo:   repo,
		auth:   auth.New(repo, nil, "seed"),
		store:  config.Store,
		counts: config.Counts,
		logger: logger,
		rand:   rand.New(rand.NewSource(*seed)),
	}
	start := time.Now()
	stats, err := s.run(ctx)
	if err != nil {
		logger.Error("error seeding store", "msg", err.Error())
		os.Exit(1)
	}
	logger.Info("seeded store", "driver", config.Store.Driver, "users", stats.Users, "follows", stats.Follows,
		"posts", stats.Posts, "likes", stats.Likes, "comments", stats.Comments,
		"took", time.Since(start).Truncate(time.Millisecond))
}
