package handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/memohai/relay/internal/auth"
)

// requireOperator rejects requests that do not carry an operator token.
func requireOperator(c echo.Context) (string, error) {
	return auth.OperatorFromContext(c)
}
