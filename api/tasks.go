package api

import (
	"errors"
	"net/http"

	"github.com/xraph/evolution/id"
	"github.com/xraph/evolution/queue"
)

type statsResponse struct {
	PendingTasks int64 `json:"pending_tasks"`
	DeadTasks    int   `json:"dead_tasks"`
}

// maxDeadScan bounds the dead task count reported by /stats.
const maxDeadScan = 1000

func (h *AdminHandler) getStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	pending, err := h.store.CountPending(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	dead, err := h.store.ListDead(ctx, maxDeadScan)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{
		PendingTasks: pending,
		DeadTasks:    len(dead),
	})
}

func (h *AdminHandler) listDead(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.store.ListDead(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if tasks == nil {
		tasks = []*queue.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *AdminHandler) getTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := id.ParseTaskID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task ID")
		return
	}

	task, err := h.store.Get(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *AdminHandler) replayTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := id.ParseTaskID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task ID")
		return
	}

	if replayErr := h.store.Replay(r.Context(), taskID); replayErr != nil {
		switch {
		case errors.Is(replayErr, queue.ErrNotFound):
			writeError(w, http.StatusNotFound, "task not found")
		case errors.Is(replayErr, queue.ErrNotDead):
			writeError(w, http.StatusConflict, "task is not dead")
		default:
			writeError(w, http.StatusInternalServerError, replayErr.Error())
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
