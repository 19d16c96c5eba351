package postgres

import (
	"testing"

	"possync/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.SetDefault(logger.NewNop())
	m.Run()
}
