package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/brandon/adex-market-monitor/internal/aggregate"
	"github.com/brandon/adex-market-monitor/internal/metrics"
	"github.com/brandon/adex-market-monitor/internal/policy"
	"github.com/brandon/adex-market-monitor/internal/state"
	"github.com/brandon/adex-market-monitor/internal/view"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Source is the running monitor as seen by the server.
type Source interface {
	Snapshot() state.Model
	Dispatch(msg state.Msg)
	Subscribe(fn func(state.Model))
}

// LiveUpdate is pushed to websocket clients on every model change.
type LiveUpdate struct {
	HTML string     `json:"html"`
	View *view.Node `json:"view"`
}

// liveInput is a message sent by a websocket client.
type liveInput struct {
	Sort string `json:"sort"`
}

// Server manages HTTP and WebSocket connections
type Server struct {
	router             *gin.Engine
	logger             *logrus.Logger
	source             Source
	targetAsset        string
	listenAddr         string
	listenPort         int
	corsAllowedOrigins []string
	httpServer         *http.Server
	wsUpgrader         websocket.Upgrader
	wsClients          map[*WSClient]bool
	wsMu               sync.RWMutex
	wsClientBufferSize int
	broadcast          chan *LiveUpdate
	stopBroadcast      chan struct{}
	stopOnce           sync.Once
	now                func() time.Time
}

// WSClient represents a WebSocket client connection
type WSClient struct {
	conn   *websocket.Conn
	send   chan *LiveUpdate
	server *Server
}

// NewServer creates a new HTTP server
func NewServer(
	source Source,
	targetAsset string,
	listenAddr string,
	listenPort int,
	corsAllowedOrigins []string,
	broadcastBufferSize int,
	wsClientBufferSize int,
	logger *logrus.Logger,
) *Server {
	if logger == nil {
		logger = logrus.New()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	srv := &Server{
		router:             router,
		logger:             logger,
		source:             source,
		targetAsset:        targetAsset,
		listenAddr:         listenAddr,
		listenPort:         listenPort,
		corsAllowedOrigins: corsAllowedOrigins,
		wsClients:          make(map[*WSClient]bool),
		wsClientBufferSize: wsClientBufferSize,
		broadcast:          make(chan *LiveUpdate, broadcastBufferSize),
		stopBroadcast:      make(chan struct{}),
		now:                time.Now,
	}
	srv.wsUpgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     srv.checkOrigin,
	}

	// Register routes
	srv.registerRoutes()

	// Push every model change to live clients
	source.Subscribe(srv.onModel)

	// Start broadcast loop
	go srv.broadcastLoop()

	return srv
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.corsAllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// checkOrigin accepts configured origins, the page served by this server and
// clients that send no Origin at all.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || s.originAllowed(origin) {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && u.Host == r.Host
}

// registerRoutes sets up all HTTP endpoints
func (s *Server) registerRoutes() {
	// CORS middleware (must be registered before routes)
	s.router.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if s.originAllowed(origin) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})
	s.router.Use(s.metricsMiddleware)

	s.router.GET("/", s.handleIndex)
	s.router.GET("/view", s.handleView)
	s.router.GET("/summary", s.handleSummary)
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Live view WebSocket
	s.router.GET("/live", s.handleLiveWebSocket)
}

func (s *Server) metricsMiddleware(c *gin.Context) {
	start := time.Now()
	c.Next()

	endpoint := c.FullPath()
	if endpoint == "" {
		endpoint = "unmatched"
	}
	metrics.HTTPRequestTotal.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
	metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
}

// handleHealth returns service health status
func (s *Server) handleHealth(c *gin.Context) {
	m := s.source.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":               "ok",
		"ready":                m.Channels.IsReady(),
		"channels_count":       len(m.Channels.Channels()),
		"last_update":          m.LastUpdated,
		"consecutive_failures": m.ConsecutiveFailures,
		"websocket_clients":    s.websocketClientCount(),
	})
}

// handleSummary returns the header figures of the current view
func (s *Server) handleSummary(c *gin.Context) {
	m := s.source.Snapshot()
	body := gin.H{
		"state":                "loading",
		"sort":                 m.Sort.String(),
		"target_asset":         s.targetAsset,
		"last_update":          m.LastUpdated,
		"consecutive_failures": m.ConsecutiveFailures,
		"last_error":           m.LastError,
	}
	if m.Channels.IsReady() {
		all := m.Channels.Channels()
		summary := aggregate.Summarize(all, policy.FilterByAsset(all, s.targetAsset))
		body["state"] = "ready"
		body["summary"] = summary
		body["display"] = gin.H{
			"total_deposit":     aggregate.FormatCurrency(summary.TotalDeposit),
			"total_paid":        aggregate.FormatCurrency(summary.TotalPaid),
			"total_impressions": aggregate.FormatCount(summary.TotalImpressions),
		}
	}
	c.JSON(http.StatusOK, body)
}

// handleView returns the current display tree
func (s *Server) handleView(c *gin.Context) {
	c.JSON(http.StatusOK, view.Render(s.source.Snapshot(), s.targetAsset, s.now()))
}

// handleIndex serves the live page with the current view rendered in place
func (s *Server) handleIndex(c *gin.Context) {
	var buf bytes.Buffer
	buf.WriteString(pageHead)
	if err := view.WriteHTML(&buf, view.Render(s.source.Snapshot(), s.targetAsset, s.now())); err != nil {
		s.logger.WithError(err).Error("Failed to render page")
		c.String(http.StatusInternalServerError, "render failed")
		return
	}
	buf.WriteString(pageTail)
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

// handleLiveWebSocket upgrades HTTP connection to WebSocket
func (s *Server) handleLiveWebSocket(c *gin.Context) {
	conn, err := s.wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.WithError(err).Error("WebSocket upgrade failed")
		return
	}

	client := s.addClient(conn)
	s.logger.WithField("client_addr", conn.RemoteAddr()).Info("WebSocket client connected")

	// Start client goroutines
	go client.readPump()
	go client.writePump()
}

// addClient registers a client and queues the current view as its first
// message. Both happen under the write lock, so every broadcast of a later
// change reaches the client after that view.
func (s *Server) addClient(conn *websocket.Conn) *WSClient {
	client := &WSClient{
		conn:   conn,
		send:   make(chan *LiveUpdate, s.wsClientBufferSize),
		server: s,
	}

	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	s.wsClients[client] = true
	metrics.WebSocketConnectionsTotal.Inc()
	metrics.WebSocketConnectionsActive.Inc()
	if update, err := s.liveUpdate(s.source.Snapshot()); err == nil {
		client.send <- update
	} else {
		s.logger.WithError(err).Error("Failed to render initial view")
	}
	return client
}

func (s *Server) liveUpdate(m state.Model) (*LiveUpdate, error) {
	node := view.Render(m, s.targetAsset, s.now())
	var buf bytes.Buffer
	if err := view.WriteHTML(&buf, node); err != nil {
		return nil, err
	}
	return &LiveUpdate{HTML: buf.String(), View: node}, nil
}

// onModel is called by the source after every model change
func (s *Server) onModel(m state.Model) {
	select {
	case <-s.stopBroadcast:
		return
	default:
	}

	update, err := s.liveUpdate(m)
	if err != nil {
		s.logger.WithError(err).Error("Failed to render live update")
		return
	}

	select {
	case s.broadcast <- update:
	default:
		s.logger.Warn("Broadcast channel full, dropping live update")
	}
}

// broadcastLoop distributes live updates to all connected clients
func (s *Server) broadcastLoop() {
	for {
		select {
		case <-s.stopBroadcast:
			return
		case update := <-s.broadcast:
			// Sends happen under the read lock so closeClient cannot close a
			// channel mid-send.
			var slow []*WSClient
			s.wsMu.RLock()
			for client := range s.wsClients {
				select {
				case client.send <- update:
				default:
					slow = append(slow, client)
				}
			}
			s.wsMu.RUnlock()

			for _, client := range slow {
				s.closeClient(client)
			}
		}
	}
}

// closeClient closes a WebSocket client connection. Only the first call for a
// client has any effect.
func (s *Server) closeClient(client *WSClient) {
	s.wsMu.Lock()
	if !s.wsClients[client] {
		s.wsMu.Unlock()
		return
	}
	delete(s.wsClients, client)
	close(client.send)
	s.wsMu.Unlock()

	metrics.WebSocketConnectionsActive.Dec()
	if client.conn != nil {
		client.conn.Close()
		s.logger.WithField("client_addr", client.conn.RemoteAddr()).Info("WebSocket client disconnected")
	}
}

func (s *Server) websocketClientCount() int {
	s.wsMu.RLock()
	defer s.wsMu.RUnlock()
	return len(s.wsClients)
}

// handleInput applies one client message. Anything but a sort request is
// ignored.
func (s *Server) handleInput(data []byte) {
	var in liveInput
	if err := json.Unmarshal(data, &in); err != nil || in.Sort == "" {
		s.logger.WithField("size", len(data)).Debug("Ignoring live input")
		return
	}
	s.source.Dispatch(state.SortModeChanged{Name: in.Sort})
}

// readPump reads messages from the WebSocket client
func (c *WSClient) readPump() {
	defer func() {
		c.server.closeClient(c)
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.logger.WithError(err).Warn("WebSocket error")
			}
			break
		}
		c.server.handleInput(data)
	}
}

// writePump writes messages to the WebSocket client
func (c *WSClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case update, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(update); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.listenAddr, s.listenPort)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	s.logger.WithField("address", addr).Info("Starting HTTP server")
	if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server, the broadcast loop and all live
// clients. It is safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stopBroadcast)

		s.wsMu.RLock()
		clients := make([]*WSClient, 0, len(s.wsClients))
		for client := range s.wsClients {
			clients = append(clients, client)
		}
		s.wsMu.RUnlock()
		for _, client := range clients {
			s.closeClient(client)
		}

		if s.httpServer != nil {
			err = s.httpServer.Shutdown(ctx)
		}
	})
	return err
}
