package feed

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"kawan/auth"
	"kawan/components/directory"
	"kawan/components/inbox"
	"kawan/components/presence"
	"kawan/jsonrpc2"
	"kawan/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	// Max wait time when writing message to peer
	writeWait = 10 * time.Second

	// Max time till next pong from peer
	pongWait = 60 * time.Second

	// Send ping interval, must be less then pong wait time
	pingPeriod = (pongWait * 9) / 10
)

var newline = []byte{'\n'}

// inbound frame methods
const (
	HeartbeatAction   = "Heartbeat"
	SetPresenceAction = "SetPresence"
	RingAction        = "Ring"
	MarkReadAction    = "MarkRead"
)

// outbound frame types
const (
	NotificationsFrame = "notifications"
	DirectoryFrame     = "directory"
	SessionFrame       = "session"
)

type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type RingForm struct {
	Target string `json:"target"`
	CallID string `json:"callId"`
}

// Client represents the websocket client at the server
type Client struct {
	conn     *websocket.Conn
	wsServer *FeedServer
	send     chan []byte
	uid      string
	Name     string `json:"name"`

	mu       sync.Mutex
	cancels  []func()
	disposed bool
}

func newClient(conn *websocket.Conn, wsServer *FeedServer, claims *auth.Claims) *Client {
	return &Client{
		conn:     conn,
		wsServer: wsServer,
		send:     make(chan []byte, 256),
		uid:      claims.GetUID(),
		Name:     claims.GetName(),
	}
}

// ServeFeed handles websocket requests from clients.
func ServeFeed(wsServer *FeedServer, c *gin.Context, devmode int) {
	userCtxValue, ok := c.Get("validuser")
	if !ok {
		utils.Log().Info("Not authenticated")
		return
	}

	claims := userCtxValue.(*auth.Claims)
	if claims.IsExpired() {
		utils.Log().Info("User token expired")
		return
	}

	var upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}

	if devmode > 0 {
		upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return strings.HasPrefix(origin, "http://192.168.") || strings.HasPrefix(origin, "http://localhost")
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.Log().Error(err, "error while upgrading to websocket")
		return
	}

	client := newClient(conn, wsServer, claims)

	go client.writeThread()
	go client.readThread()

	wsServer.register <- client
	utils.Log().Info("ServeFeed " + claims.GetName())
}

func (me *Client) GetUID() string {
	return me.uid
}

// addCancel registers a subscription teardown on the client and on the
// active session, so both a dropped socket and a sign-out stop the
// streams.
func (me *Client) addCancel(cancel func()) {
	me.mu.Lock()
	if me.disposed {
		me.mu.Unlock()
		cancel()
		return
	}
	me.cancels = append(me.cancels, cancel)
	me.mu.Unlock()

	if s := me.wsServer.sessions.Get(me.uid); s != nil {
		s.AddCancel(cancel)
	}
}

// trySend drops the frame when the client is going away instead of
// blocking the stream pump.
func (me *Client) trySend(b []byte) {
	me.mu.Lock()
	defer me.mu.Unlock()
	if me.disposed {
		return
	}
	select {
	case me.send <- b:
	default:
	}
}

func (me *Client) sendFrame(frameType string, data interface{}) {
	raw, err := utils.ToRawMessage(data)
	if err != nil {
		utils.Log().Error(err, "error while encoding feed frame")
		return
	}
	b, err := json.Marshal(&Frame{Type: frameType, Data: raw})
	if err != nil {
		return
	}
	me.trySend(b)
}

// startStreams opens the live subscriptions: the caller's inbox and
// the directory, both already masked for this viewer.
func (me *Client) startStreams() {
	inboxCh, cancel, err := me.wsServer.inboxService.Subscribe(me.uid)
	if err != nil {
		utils.Log().Error(err, "inbox subscription failed for "+me.uid)
	} else {
		me.addCancel(cancel)
		go func() {
			for list := range inboxCh {
				me.sendFrame(NotificationsFrame, list)
			}
		}()
	}

	dirCh, cancel, err := me.wsServer.userService.WatchAll()
	if err != nil {
		utils.Log().Error(err, "directory subscription failed for "+me.uid)
	} else {
		me.addCancel(cancel)
		go func() {
			for users := range dirCh {
				viewer, err := me.wsServer.userService.FindUserById(me.uid)
				if err != nil {
					continue
				}
				entries := []*directory.Entry{}
				for _, u := range users {
					if u.UID == viewer.UID {
						continue
					}
					entries = append(entries, directory.MaskEntry(viewer, u))
				}
				me.sendFrame(DirectoryFrame, entries)
			}
		}()
	}
}

func (me *Client) readThread() {
	defer me.disconnect()

	me.conn.SetReadDeadline(time.Now().Add(pongWait))
	me.conn.SetPongHandler(func(string) error {
		// keep connection alive
		me.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, jsonMessage, err := me.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				utils.Log().Error(err, "unexpected websocket close error")
				break
			}

			if strings.Contains(err.Error(), "close") {
				utils.Log().V(2).Info(fmt.Sprintf("client @%s close connection", me.Name))
				break
			}

			utils.Log().Error(err, "error while reading message")
			break
		}

		me.handleNewMessage(jsonMessage)
	}
}

func (me *Client) writeThread() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		me.conn.Close()
	}()
	for {
		select {
		case message, ok := <-me.send:
			me.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The FeedServer closed the channel.
				me.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := me.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			//Attach queued frames to the current websocket message.
			n := len(me.send)
			for i := 0; i < n; i++ {
				w.Write(newline)
				w.Write(<-me.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			me.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := me.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (me *Client) disconnect() {
	utils.Log().Info("disconnect " + me.Name)

	me.mu.Lock()
	if me.disposed {
		me.mu.Unlock()
		return
	}
	me.disposed = true
	cancels := me.cancels
	me.cancels = nil
	me.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}

	me.wsServer.unregister <- me
	close(me.send)
	me.conn.Close()
}

func (me *Client) handleNewMessage(jsonMessage []byte) {
	utils.Log().V(2).Info("handleNewMessage " + string(jsonMessage))
	var rpc jsonrpc2.RPCRequest
	if err := json.Unmarshal(jsonMessage, &rpc); err != nil {
		utils.Log().Error(err, "error on unmarshal JSON rpc")
		return
	}

	// any frame from the client is a liveness signal
	if s := me.wsServer.sessions.Get(me.uid); s != nil {
		s.Tracker.Activity()
	}

	switch rpc.Method {
	case HeartbeatAction:
		// Activity above already did the work

	case SetPresenceAction:
		me.handleSetPresence(&rpc)

	case RingAction:
		me.handleRing(&rpc)

	case MarkReadAction:
		me.handleMarkRead(&rpc)

	default:
		utils.Log().V(2).Info("unknown feed method " + rpc.Method)
	}
}

func (me *Client) handleSetPresence(rpc *jsonrpc2.RPCRequest) {
	var form presence.SetPresenceRequest
	if err := json.Unmarshal(rpc.Params, &form); err != nil {
		utils.Log().Error(err, "error on unmarshal presence frame")
		return
	}

	s := me.wsServer.sessions.Get(me.uid)
	if s == nil {
		return
	}

	if err := s.Tracker.SetPresence(form.Online, form.Immediate); err != nil {
		utils.Log().Error(err, "presence frame write failed")
	}
}

// handleRing files a transient call notification on the callee's
// inbox; the inbox stream delivers it if they are connected.
func (me *Client) handleRing(rpc *jsonrpc2.RPCRequest) {
	var form RingForm
	if err := json.Unmarshal(rpc.Params, &form); err != nil {
		utils.Log().Error(err, "error on unmarshal ring frame")
		return
	}
	if form.Target == "" {
		return
	}

	n := inbox.NewNotification(inbox.TypeCallRinging, fmt.Sprintf("incoming call from %s", me.Name))
	n.From = me.uid
	n.FromName = me.Name
	n.To = form.Target
	n.CallerUID = me.uid
	n.CallID = form.CallID
	n.CallStatus = inbox.CallStatusRinging

	if err := me.wsServer.inboxService.Append(form.Target, n); err != nil {
		utils.Log().Error(err, "ring notification append failed")
	}
}

func (me *Client) handleMarkRead(rpc *jsonrpc2.RPCRequest) {
	var n inbox.Notification
	if err := json.Unmarshal(rpc.Params, &n); err != nil {
		utils.Log().Error(err, "error on unmarshal markread frame")
		return
	}

	if err := me.wsServer.inboxService.MarkRead(me.uid, &n); err != nil {
		utils.Log().Error(err, "markread frame failed")
	}
}
