package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"kawan/app/feed"
	"kawan/auth"
	"kawan/components/directory"
	"kawan/components/friends"
	"kawan/components/inbox"
	"kawan/components/presence"
	"kawan/components/user"
	"kawan/config"
	"kawan/session"
	"kawan/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/juju/ratelimit"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

var (
	server         *gin.Engine
	ctx            context.Context
	addr           string
	verbosityLevel int
	limiter        *ratelimit.Bucket
)

func showHelp() {
	fmt.Printf("Usage:%s {params}\n", os.Args[0])
	fmt.Println("      -a {listen addr}")
	fmt.Println("      -h (show help info)")
	fmt.Println("      -v {0-2} (verbosity level, default 0)")
}

func parse() bool {
	flag.StringVar(&addr, "a", "", "address to use")
	flag.IntVar(&verbosityLevel, "v", -1, "verbosity level, higher value - more logs")
	help := flag.Bool("h", false, "help info")
	flag.Parse()

	if *help {
		return false
	}
	return true
}

func main() {
	if !parse() {
		showHelp()
		os.Exit(-1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	// flags override the config file
	if addr == "" {
		addr = cfg.Address
	}
	if verbosityLevel < 0 {
		verbosityLevel = cfg.Verbosity
	}

	logger := utils.NewLogger(verbosityLevel)
	utils.SetLogger(logger)
	logger.Info(fmt.Sprintf("verbosity level is: %d", verbosityLevel))

	ctx = context.TODO()

	// Connect to MongoDB
	mongoconn := options.Client().ApplyURI(cfg.MongoURI)
	mongoclient, err := mongo.NewClient(mongoconn)
	if err != nil {
		panic(err)
	}

	err = mongoclient.Connect(ctx)
	if err != nil {
		panic(err)
	}

	if err := mongoclient.Ping(ctx, readpref.Primary()); err != nil {
		panic(err)
	}

	fmt.Println("MongoDB successfully connected...")

	// Redis mirrors presence; without it reads fall back to the store
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Error(err, "redis unreachable, presence cache disabled")
			rdb = nil
		} else {
			fmt.Println("Redis successfully connected...")
		}
	}
	cache := presence.NewCache(rdb)

	google := auth.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)

	firebase, err := auth.NewFirebaseProvider(ctx, cfg.FirebaseCredentials)
	if err != nil {
		logger.Error(err, "firebase provider disabled")
		firebase = nil
	}

	userService := user.NewUserService(mongoclient.Database("kawan").Collection("users"), ctx)
	sessions := session.NewManager(func(identity *auth.Identity) presence.I_Writer {
		return user.NewPresenceWriter(userService, cache, identity)
	})

	go func() {
		for ev := range sessions.Events() {
			utils.Log().V(1).Info(fmt.Sprintf("session event uid:%s signedIn:%t", ev.UID, ev.SignedIn))
		}
	}()

	server = gin.Default()
	server.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "credentials", "Access-Control-Allow-Credentials"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	server.Use(auth.AuthMiddleware())

	limiter = ratelimit.NewBucket(time.Minute/time.Duration(cfg.RateLimitPerMinute), cfg.RateLimitPerMinute)

	userRoute := user.NewUserRoute(mongoclient, ctx, logger, limiter, google, firebase, sessions)
	userRoute.InitRouteTo(&server.RouterGroup)

	friendRoute := friends.NewFriendRoute(mongoclient, ctx, logger, limiter)
	friendRoute.InitRouteTo(&server.RouterGroup)

	inboxRoute := inbox.NewInboxRoute(mongoclient, ctx, logger, limiter)
	inboxRoute.InitRouteTo(&server.RouterGroup)

	directoryRoute := directory.NewDirectoryRoute(mongoclient, ctx, logger, limiter, cache)
	directoryRoute.InitRouteTo(&server.RouterGroup)

	feedServer := feed.NewFeedServer(mongoclient, ctx, sessions)
	go feedServer.Run()
	feedServer.InitRouteTo(server, cfg.DevMode)

	server.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/ping/")
	})
	server.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	server.Run(addr)
}
