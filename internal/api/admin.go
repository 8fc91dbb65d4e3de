package api

import (
	"errors"
	"net/http"

	"gbfs-sync/internal/updater"
)

var errNoCleaner = errors.New("cleaner not configured")

// writable：管理写操作与增量应用一样只允许 leader 执行
func writable(d Deps, w http.ResponseWriter) bool {
	if d.Leader != nil && !d.Leader.IsLeader() {
		writeError(w, http.StatusServiceUnavailable, updater.ErrNotLeader)
		return false
	}
	return true
}

func listOrphans(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Cleaner == nil {
			writeError(w, http.StatusNotFound, errNoCleaner)
			return
		}
		ids, err := d.Cleaner.FindOrphans(r.Context(), r.PathValue("kind"))
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"count": len(ids), "ids": ids})
	}
}

func removeOrphans(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Cleaner == nil {
			writeError(w, http.StatusNotFound, errNoCleaner)
			return
		}
		if !writable(d, w) {
			return
		}
		ids, err := d.Cleaner.RemoveOrphans(r.Context(), r.PathValue("kind"))
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"removed": len(ids), "ids": ids})
	}
}

// removeProvider：删除提供方配置（可写来源时）、关闭其接入队列并清理全部数据
func removeProvider(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Cleaner == nil {
			writeError(w, http.StatusNotFound, errNoCleaner)
			return
		}
		if !writable(d, w) {
			return
		}
		id := r.PathValue("id")
		deleted := false
		if d.Providers != nil {
			ok, err := d.Providers.Delete(r.Context(), id)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			deleted = ok
		}
		if d.Dispatcher != nil {
			d.Dispatcher.Drop(id)
		}
		if err := d.Cleaner.CleanupProvider(r.Context(), id); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"provider": id, "configDeleted": deleted})
	}
}
