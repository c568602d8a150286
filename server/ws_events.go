package server

import (
	"net/http"
	"path/filepath"
	"time"

	"VoxDub/core/address"
	"VoxDub/logger"
	"VoxDub/model"

	"github.com/fsnotify/fsnotify"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// JobEventsHandler 把任务状态记录的每次变更推送给订阅方，
// 终态（201/500）推送完即关闭连接。
func (h *APIHandler) JobEventsHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	jobID := vars["job_id"]
	kind := model.JobKind(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = model.KindVideo
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", logger.ErrorField(err))
		return
	}
	defer conn.Close()

	statusPath := filepath.Join(h.cfg.JobsDir, address.StatusFileName(jobID, kind))

	// 先推一次当前状态，订阅晚了也不会错过已发生的进度
	if terminal := h.pushRecord(conn, statusPath); terminal {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("watcher failed", logger.ErrorField(err))
		return
	}
	defer watcher.Close()

	// 监听整个目录：状态文件是整体覆盖写的，单独盯文件会丢事件
	if err := watcher.Add(h.cfg.JobsDir); err != nil {
		logger.Error("watcher add failed", logger.ErrorField(err))
		return
	}

	// 客户端断开时退出
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	idle := time.NewTimer(10 * time.Minute)
	defer idle.Stop()

	for {
		select {
		case event := <-watcher.Events:
			if event.Name != statusPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if terminal := h.pushRecord(conn, statusPath); terminal {
				return
			}
		case err := <-watcher.Errors:
			logger.Warn("watcher error", logger.ErrorField(err))
		case <-clientGone:
			return
		case <-idle.C:
			logger.Debug("事件订阅超时关闭", logger.String("jobId", jobID))
			return
		}
	}
}

// pushRecord 读取状态记录并推送，返回是否已是终态
func (h *APIHandler) pushRecord(conn *websocket.Conn, statusPath string) bool {
	rec, err := h.statusRepo.Read(statusPath)
	if err != nil {
		return false
	}
	if err := conn.WriteJSON(rec); err != nil {
		logger.Warn("websocket write", logger.ErrorField(err))
		return true
	}
	code := rec.LastStatus.Code
	return code == model.StatusComplete || code == model.StatusFailed
}
