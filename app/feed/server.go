package feed

import (
	"context"
	"fmt"

	"kawan/components/inbox"
	"kawan/components/user"
	"kawan/session"
	"kawan/utils"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
)

// FeedServer owns the live connections. Each registered client gets
// its own inbox and directory subscriptions; the server loop only
// tracks membership.
type FeedServer struct {
	clients      map[*Client]bool
	register     chan *Client
	unregister   chan *Client
	inboxService inbox.I_InboxRepo
	userService  user.I_UserRepo
	sessions     *session.Manager
}

func NewFeedServer(mongoclient *mongo.Client, ctx context.Context, sessions *session.Manager) *FeedServer {
	userCollection := mongoclient.Database("kawan").Collection("users")

	return &FeedServer{
		clients:      make(map[*Client]bool),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		inboxService: inbox.NewInboxService(userCollection, ctx),
		userService:  user.NewUserService(userCollection, ctx),
		sessions:     sessions,
	}
}

func (server *FeedServer) InitRouteTo(rg *gin.Engine, devmode int) {
	rg.GET("/ws", func(c *gin.Context) {
		ServeFeed(server, c, devmode)
	})
}

// Run our feed server, accepting register and unregister requests
func (server *FeedServer) Run() {
	for {
		select {

		case client := <-server.register:
			server.registerClient(client)

		case client := <-server.unregister:
			server.unregisterClient(client)
		}
	}
}

func (server *FeedServer) registerClient(client *Client) {
	server.clients[client] = true
	client.startStreams()

	utils.Log().V(2).Info(fmt.Sprintf("registered %s id: %s", client.Name, client.GetUID()))
	utils.Log().V(2).Info(fmt.Sprintf("client counts %d", len(server.clients)))
}

func (server *FeedServer) unregisterClient(client *Client) {
	if _, ok := server.clients[client]; ok {
		delete(server.clients, client)
		utils.Log().V(2).Info(fmt.Sprintf("del connection %s @%s", client.Name, client.conn.RemoteAddr().String()))
	}
}
