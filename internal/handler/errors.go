package handler

import (
	"log/slog"

	"FileShare/internal/xerrors"
	"FileShare/utils"

	"github.com/gin-gonic/gin"
)

// writeError maps err to a status and a {"detail": ...} body. Server side
// failures are logged with their cause, which never reaches the client. The
// rest of the handler chain is skipped.
func (h *ShareHandler) writeError(c *gin.Context, err error) {
	status := xerrors.HTTPStatus(err)
	if status >= 500 {
		h.logger.ErrorContext(c.Request.Context(), "request failed",
			slog.String("request_id", utils.GetRequestID(c)),
			slog.String("path", c.FullPath()),
			slog.Any("error", err),
		)
	}
	utils.AbortWithDetail(c, status, xerrors.Message(err))
}
