package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"GuildFM/core/auth"
	"GuildFM/core/hub"
	"GuildFM/core/player"
	"GuildFM/logger"
	"GuildFM/model"
	"GuildFM/repository"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// HistoryReader 播放历史查询，由 repository.PlayHistoryTable 实现
type HistoryReader interface {
	Recent(ctx context.Context, guildID string, limit int) ([]model.PlayHistory, error)
}

// Deps 服务依赖。History、Playlists 和 EngineReady 可以为空。
type Deps struct {
	Controller   *player.Controller
	Hub          *hub.Hub
	Issuer       *auth.Issuer
	PasswordHash string
	History      HistoryReader
	Playlists    repository.PlaylistRepository
	EngineReady  func() bool
}

// Server 面板 REST / WebSocket 接口
type Server struct {
	controller   *player.Controller
	hub          *hub.Hub
	issuer       *auth.Issuer
	passwordHash string
	history      HistoryReader
	playlists    repository.PlaylistRepository
	engineReady  func() bool
	upgrader     websocket.Upgrader
}

// New 创建服务
func New(deps Deps) *Server {
	return &Server{
		controller:   deps.Controller,
		hub:          deps.Hub,
		issuer:       deps.Issuer,
		passwordHash: deps.PasswordHash,
		history:      deps.History,
		playlists:    deps.Playlists,
		engineReady:  deps.EngineReady,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Router 注册所有路由
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(corsMiddleware)

	router.HandleFunc("/api/auth/login", s.LoginHandler).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/api/health", s.HealthHandler).Methods(http.MethodGet)
	router.HandleFunc("/ws/events", s.AuthMiddleware(s.EventsHandler)).Methods(http.MethodGet)

	api := router.PathPrefix("/api/guilds/{guildId}").Subrouter()
	api.HandleFunc("/queue", s.AuthMiddleware(s.QueueHandler)).Methods(http.MethodGet)
	api.HandleFunc("/history", s.AuthMiddleware(s.HistoryHandler)).Methods(http.MethodGet)
	api.HandleFunc("/play", s.AuthMiddleware(s.PlayHandler)).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/control", s.AuthMiddleware(s.ControlHandler)).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/loop", s.AuthMiddleware(s.LoopHandler)).Methods(http.MethodPut, http.MethodOptions)
	api.HandleFunc("/lyrics", s.AuthMiddleware(s.LyricsHandler)).Methods(http.MethodPut, http.MethodOptions)
	api.HandleFunc("/voice", s.AuthMiddleware(s.VoiceHandler)).Methods(http.MethodPost, http.MethodOptions)

	api.HandleFunc("/playlists", s.AuthMiddleware(s.PlaylistsHandler)).Methods(http.MethodGet, http.MethodPost, http.MethodOptions)
	api.HandleFunc("/playlists/{playlistId}", s.AuthMiddleware(s.PlaylistHandler)).Methods(http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodOptions)
	api.HandleFunc("/playlists/{playlistId}/play", s.AuthMiddleware(s.PlayPlaylistHandler)).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/playlists/{playlistId}/tracks", s.AuthMiddleware(s.PlaylistTracksHandler)).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/playlists/{playlistId}/tracks/{trackId}", s.AuthMiddleware(s.PlaylistTrackHandler)).Methods(http.MethodDelete, http.MethodOptions)

	return router
}

// corsMiddleware 允许面板跨域访问
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe 启动 HTTP 服务，ctx 结束后优雅关闭
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server starting", logger.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// HealthHandler 健康检查
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	engine := "unknown"
	if s.engineReady != nil {
		engine = "down"
		if s.engineReady() {
			engine = "ready"
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"engine":   engine,
		"sessions": s.controller.Registry().Len(),
	})
}

// EventsHandler 升级为 WebSocket，推送事件。?guild= 为空时接收全部服务器。
func (s *Server) EventsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", logger.ErrorField(err))
		return
	}

	client := hub.NewClient(s.hub, conn, r.URL.Query().Get("guild"))
	s.hub.Register(client)
	go client.WritePump()
	client.ReadPump(context.Background())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to write response", logger.ErrorField(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writePlayerError 把控制器错误映射为 HTTP 状态码
func writePlayerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, player.ErrNoSession), errors.Is(err, player.ErrNothingPlaying), errors.Is(err, player.ErrNotConnected):
		writeError(w, http.StatusConflict, "Nothing is playing")
	case errors.Is(err, player.ErrNoResults):
		writeError(w, http.StatusNotFound, "No tracks found")
	case errors.Is(err, player.ErrNoVoiceState):
		writeError(w, http.StatusConflict, player.UserMessage(err))
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusGatewayTimeout, "Request timed out")
	default:
		var pe *player.PlaybackError
		if errors.As(err, &pe) {
			writeError(w, http.StatusBadGateway, pe.Message)
			return
		}
		logger.Error("player request failed", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
