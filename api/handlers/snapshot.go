package handlers

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/BaSui01/agentkernel/agent/kernel"
	"github.com/BaSui01/agentkernel/agent/persistence"
	"github.com/BaSui01/agentkernel/api"
	"github.com/BaSui01/agentkernel/types"
)

// =============================================================================
// 💾 快照 Handler
// =============================================================================

// SnapshotHandler 快照保存、查询、恢复与删除
type SnapshotHandler struct {
	owner  *kernel.Owner
	store  persistence.SnapshotStore
	logger *zap.Logger
}

// NewSnapshotHandler 创建快照处理器
func NewSnapshotHandler(owner *kernel.Owner, store persistence.SnapshotStore, logger *zap.Logger) *SnapshotHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotHandler{owner: owner, store: store, logger: logger.With(zap.String("handler", "snapshot"))}
}

// Register 注册快照路由
func (h *SnapshotHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/snapshots", h.HandleList)
	mux.HandleFunc("POST /api/v1/snapshots/{id}", h.HandleSave)
	mux.HandleFunc("GET /api/v1/snapshots/{id}", h.HandleGet)
	mux.HandleFunc("POST /api/v1/snapshots/{id}/restore", h.HandleRestore)
	mux.HandleFunc("DELETE /api/v1/snapshots/{id}", h.HandleDelete)
}

func (h *SnapshotHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeErrorFor(w, r, toAPIError(err), h.logger)
}

func (h *SnapshotHandler) pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if err := persistence.ValidateID(id); err != nil {
		h.fail(w, r, err)
		return "", false
	}
	return id, true
}

func savedFrom(id string, info persistence.SnapshotInfo) api.SnapshotSaved {
	return api.SnapshotSaved{
		ID:       id,
		KernelID: info.KernelID,
		Facts:    info.Facts,
		Rules:    info.Rules,
		Memories: info.Memories,
		SavedAt:  info.UpdatedAt,
	}
}

func summarize(id string, snap *kernel.Snapshot) api.SnapshotSaved {
	memories := 0
	for _, items := range snap.Memory {
		memories += len(items)
	}
	return api.SnapshotSaved{
		ID:       id,
		KernelID: snap.KernelID,
		Facts:    len(snap.Facts),
		Rules:    len(snap.Rules),
		Memories: memories,
		SavedAt:  snap.CreatedAt,
	}
}

// HandleSave 导出内核状态并保存到 id
// @Summary 保存快照
// @Tags 快照
// @Produce json
// @Param id path string true "快照 ID"
// @Success 201 {object} api.SnapshotSaved
// @Router /api/v1/snapshots/{id} [post]
func (h *SnapshotHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	snap, err := kernel.Call(r.Context(), h.owner, func(ctx context.Context, k *kernel.Kernel) (*kernel.Snapshot, error) {
		return k.Snapshot(ctx)
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	// 导出在内核 goroutine 上完成，落盘不占用内核
	if err := h.store.Save(r.Context(), id, snap); err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Info("snapshot saved", zap.String("id", id), zap.Int("facts", len(snap.Facts)))
	writeSuccessStatus(w, r, http.StatusCreated, summarize(id, snap))
}

// HandleList 列出快照
// @Summary 列出快照
// @Tags 快照
// @Produce json
// @Param kernel_id query string false "内核 ID"
// @Param limit query int false "数量上限"
// @Success 200 {object} Response
// @Router /api/v1/snapshots [get]
func (h *SnapshotHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	filter := persistence.ListFilter{KernelID: r.URL.Query().Get("kernel_id")}
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			h.fail(w, r, types.NewInvalidRequestError("limit must be a non-negative integer"))
			return
		}
		filter.Limit = n
	}
	infos, err := h.store.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]api.SnapshotSaved, 0, len(infos))
	for _, info := range infos {
		out = append(out, savedFrom(info.ID, info))
	}
	writeSuccessStatus(w, r, http.StatusOK, out)
}

// HandleGet 返回完整快照
// @Summary 获取快照
// @Tags 快照
// @Produce json
// @Param id path string true "快照 ID"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Router /api/v1/snapshots/{id} [get]
func (h *SnapshotHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	snap, err := h.store.Load(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccessStatus(w, r, http.StatusOK, snap)
}

// HandleRestore 用已保存的快照替换内核状态
// @Summary 恢复快照
// @Tags 快照
// @Produce json
// @Param id path string true "快照 ID"
// @Success 200 {object} api.SnapshotSaved
// @Failure 404 {object} Response
// @Failure 422 {object} Response "SNAPSHOT_CORRUPTED"
// @Router /api/v1/snapshots/{id}/restore [post]
func (h *SnapshotHandler) HandleRestore(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	snap, err := h.store.Load(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	err = h.owner.Do(r.Context(), func(ctx context.Context, k *kernel.Kernel) error {
		return k.Restore(ctx, snap)
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Info("snapshot restored", zap.String("id", id), zap.String("source_kernel", snap.KernelID))
	writeSuccessStatus(w, r, http.StatusOK, summarize(id, snap))
}

// HandleDelete 删除快照
// @Summary 删除快照
// @Tags 快照
// @Param id path string true "快照 ID"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Router /api/v1/snapshots/{id} [delete]
func (h *SnapshotHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.store.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccessStatus(w, r, http.StatusOK, map[string]any{"id": id, "deleted": true})
}
