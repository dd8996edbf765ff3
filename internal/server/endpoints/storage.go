package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/easelhq/easel/internal/api"
	"github.com/easelhq/easel/internal/svcctx"
)

// StorageStatsResponse reports asset store usage.
type StorageStatsResponse struct {
	Objects    int   `json:"objects"`
	TotalBytes int64 `json:"total_bytes"`
}

// StorageStatsEndpoint handles GET /api/storage/stats.
type StorageStatsEndpoint struct{}

var _ api.Endpoint = (*StorageStatsEndpoint)(nil)

func (e *StorageStatsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/storage/stats", e.handler
}

func (e *StorageStatsEndpoint) RequiresInit() bool { return true }

func (e *StorageStatsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	as := svcctx.AssetsFrom(r.Context())
	if as == nil {
		writeError(w, http.StatusServiceUnavailable, "asset store not initialized")
		return
	}

	stats, err := as.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, StorageStatsResponse{
		Objects:    stats.Objects,
		TotalBytes: stats.TotalBytes,
	})
}

func (e *StorageStatsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "storage-stats",
		Short: "Show asset store usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp StorageStatsResponse
			if err := client.Get(cmd.Context(), "/api/storage/stats", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
