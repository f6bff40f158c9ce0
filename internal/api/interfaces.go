// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"github.com/labstack/echo/v4"
)

// DatasetHandler handles dataset state-machine operations
type DatasetHandler interface {
	HandleHealth(c echo.Context) error
	HandleGetState(c echo.Context) error
	HandleGetStateMsgpack(c echo.Context) error
	HandleSelectFile(c echo.Context) error
	HandleConfirmSheet(c echo.Context) error
	HandleCommit(c echo.Context) error
	HandleSetDescription(c echo.Context) error
	HandleGenerateDescription(c echo.Context) error
	HandleResolveMismatch(c echo.Context) error
	HandleClear(c echo.Context) error
	HandlePreviewDefault(c echo.Context) error
	HandleSessionChanged(c echo.Context) error
	HandleSessionRefresh(c echo.Context) error
	HandleDismissNotice(c echo.Context) error
	HandleDiagnostics(c echo.Context) error
}
