package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLogBuffer(t *testing.T) {
	buffer := NewMemoryLogBuffer()
	defer buffer.Close()

	// 空部署返回空列表而不是错误
	entries, err := buffer.Get("dep-1")
	require.NoError(t, err)
	assert.Empty(t, entries)

	first := DeployLogEntry{
		DeploymentID: "dep-1",
		Step:         "configure_subdomain",
		Status:       "running",
		Timestamp:    time.Now(),
	}
	require.NoError(t, buffer.Append("dep-1", first))
	require.NoError(t, buffer.Append("dep-1", DeployLogEntry{
		DeploymentID: "dep-1",
		Step:         "configure_subdomain",
		Status:       "completed",
	}))
	require.NoError(t, buffer.Append("dep-2", DeployLogEntry{
		DeploymentID: "dep-2",
		Step:         "bootstrap_host",
		Status:       "running",
	}))

	// 按部署隔离且保持追加顺序
	entries, err = buffer.Get("dep-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "running", entries[0].Status)
	assert.Equal(t, "completed", entries[1].Status)

	entries, err = buffer.Get("dep-2")
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, buffer.Purge("dep-1"))
	entries, err = buffer.Get("dep-1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
