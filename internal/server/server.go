package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/LudwigRoderich/BatallaNaval/internal/config"
	"github.com/LudwigRoderich/BatallaNaval/internal/ws"
)

// Server 對局伺服器：TCP 監聽迴圈與元件生命週期
//
// 每條連線一個 goroutine：握手、讀取、路由全在該 goroutine 上，
// 寫入透過連線自身的鎖序列化。關閉時先停止接受新連線，
// 再關閉既有連線與註冊表。
type Server struct {
	cfg      *config.Config
	registry *Registry
	hub      *Hub
	logger   *slog.Logger

	listener net.Listener
	mu       sync.Mutex
	closed   bool
	wg       sync.WaitGroup
}

// New 組裝伺服器元件
func New(cfg *config.Config, logger *slog.Logger) *Server {
	registry := NewRegistry(
		cfg.Game.BoardSize,
		cfg.IdleTimeout(),
		cfg.GraceWindow(),
		cfg.SweepInterval(),
		logger,
	)
	hub := NewHub(registry, logger)
	registry.SetNotifier(hub)

	return &Server{
		cfg:      cfg,
		registry: registry,
		hub:      hub,
		logger:   logger,
	}
}

// Listen 綁定監聽位址
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("監聽失敗: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("伺服器開始監聽",
		"addr", listener.Addr().String(),
		"board_size", s.cfg.Game.BoardSize)
	return nil
}

// Addr 回傳實際監聽位址（埠號 0 時由系統指派）
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve 接受連線直到 Shutdown 被呼叫。
// 必須先呼叫 Listen。
func (s *Server) Serve() error {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		return errors.New("尚未監聽")
	}

	for {
		raw, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			return fmt.Errorf("接受連線失敗: %w", err)
		}

		s.wg.Add(1)
		go s.handleConn(raw)
	}
}

// handleConn 處理單一 TCP 連線的完整生命週期
func (s *Server) handleConn(raw net.Conn) {
	defer s.wg.Done()

	conn, err := ws.Upgrade(raw, s.cfg.Server.MaxMessageSize)
	if err != nil {
		s.logger.Debug("握手失敗",
			"remote", raw.RemoteAddr(),
			"error", err)
		_ = raw.Close()
		return
	}

	s.hub.ServeConn(newClient(conn, s.logger))
}

// Shutdown 優雅關閉：停止接受新連線、關閉既有連線、
// 停止註冊表的清理 goroutine，等待所有連線 goroutine 收尾
func (s *Server) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	listener := s.listener
	s.mu.Unlock()

	if listener != nil {
		_ = listener.Close()
	}
	s.hub.Stop()
	s.wg.Wait()
	s.registry.Stop()

	s.logger.Info("伺服器已停止")
}

// Stats 聚合統計資訊
func (s *Server) Stats() map[string]any {
	return s.registry.Stats()
}
