package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"hirehub/internal/models"
	"hirehub/internal/services"
	"hirehub/pkg/jwt"
	"hirehub/pkg/queue"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type wsFixture struct {
	server     *httptest.Server
	deployment *models.InstanceDeployment
	buffer     queue.DeployLogBuffer
	admin      *models.User
	member     *models.User
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Organization{},
		&models.User{},
		&models.InstanceDeployment{},
	))

	org := &models.Organization{
		Name: "Acme", Slug: "acme",
		Tier:            models.TierStarter,
		DeploymentModel: models.DeploymentModelShared,
		Status:          models.OrgStatusActive,
	}
	require.NoError(t, db.Create(org).Error)

	admin := &models.User{
		Username: "platform-admin", Email: "admin@hirehub.test",
		PasswordHash: "x", Name: "Admin",
		Status: models.UserStatusActive, IsPlatformAdmin: true,
	}
	require.NoError(t, db.Create(admin).Error)

	member := &models.User{
		OrganizationID: &org.ID,
		Username:       "member", Email: "member@acme.test",
		PasswordHash: "x", Name: "Member",
		Status: models.UserStatusActive,
	}
	require.NoError(t, db.Create(member).Error)

	deployments := services.NewDeploymentService(db)
	deployment, err := deployments.Create(org.ID, models.DeploymentModelShared, models.TierStarter, "acme")
	require.NoError(t, err)

	// 终态部署：推完历史日志后连接立即关闭，测试无需等待轮询
	_, err = deployments.MarkActive(deployment.ID, "https://acme.hirehub.test")
	require.NoError(t, err)

	buffer := queue.NewMemoryLogBuffer()
	handler := NewWebSocketHandler(deployments, services.NewUserService(db), buffer)

	router := gin.New()
	router.GET("/api/v1/instances/:deploymentId/logs/stream", handler.StreamDeployLogs)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &wsFixture{
		server:     server,
		deployment: deployment,
		buffer:     buffer,
		admin:      admin,
		member:     member,
	}
}

func (f *wsFixture) streamURL(token string) string {
	url := strings.Replace(f.server.URL, "http", "ws", 1) +
		"/api/v1/instances/" + f.deployment.ID + "/logs/stream"
	if token != "" {
		url += "?token=" + token
	}
	return url
}

func userToken(t *testing.T, user *models.User) string {
	t.Helper()
	var orgID uint
	if user.OrganizationID != nil {
		orgID = *user.OrganizationID
	}
	token, err := jwt.GetJWTManager().GenerateToken(user.ID, orgID, user.Username, user.IsPlatformAdmin)
	require.NoError(t, err)
	return token
}

func TestStreamDeployLogsRejectsMissingToken(t *testing.T) {
	f := newWSFixture(t)
	require.NoError(t, f.buffer.Append(f.deployment.ID, queue.DeployLogEntry{
		DeploymentID: f.deployment.ID, Step: "issue_certificate",
		Status: "failed", Message: "acme challenge拒绝",
	}))

	conn, resp, err := websocket.DefaultDialer.Dial(f.streamURL(""), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Nil(t, conn)
}

func TestStreamDeployLogsRejectsInvalidToken(t *testing.T) {
	f := newWSFixture(t)

	conn, resp, err := websocket.DefaultDialer.Dial(f.streamURL("not-a-real-token"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Nil(t, conn)
}

func TestStreamDeployLogsRejectsNonPlatformAdmin(t *testing.T) {
	f := newWSFixture(t)

	conn, resp, err := websocket.DefaultDialer.Dial(f.streamURL(userToken(t, f.member)), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Nil(t, conn)
}

func TestStreamDeployLogsDeliversToPlatformAdmin(t *testing.T) {
	f := newWSFixture(t)
	require.NoError(t, f.buffer.Append(f.deployment.ID, queue.DeployLogEntry{
		DeploymentID: f.deployment.ID, Step: "issue_certificate",
		Status: "completed", Message: "证书签发完成",
	}))

	conn, resp, err := websocket.DefaultDialer.Dial(f.streamURL(userToken(t, f.admin)), nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	var entry queue.DeployLogEntry
	require.NoError(t, conn.ReadJSON(&entry))
	assert.Equal(t, "issue_certificate", entry.Step)

	// 部署已是终态，历史日志之后紧跟结束事件
	var done struct {
		Event  string `json:"event"`
		Status string `json:"status"`
	}
	require.NoError(t, conn.ReadJSON(&done))
	assert.Equal(t, "done", done.Event)
	assert.Equal(t, models.DeployStatusActive, done.Status)
}
