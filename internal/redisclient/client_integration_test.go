package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/models"
)

type ClientIntegrationTestSuite struct {
	suite.Suite
	container testcontainers.Container
	client    *Client
}

func TestClientIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Integration test - requires docker")
	}
	suite.Run(t, new(ClientIntegrationTestSuite))
}

func (suite *ClientIntegrationTestSuite) SetupSuite() {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	suite.Require().NoError(err)
	suite.container = container

	addr, err := container.Endpoint(ctx, "")
	suite.Require().NoError(err)

	client, err := NewClient(addr, "", 0)
	suite.Require().NoError(err)
	suite.client = client
}

func (suite *ClientIntegrationTestSuite) TearDownSuite() {
	if suite.client != nil {
		suite.client.Close()
	}
	if suite.container != nil {
		suite.Require().NoError(suite.container.Terminate(context.Background()))
	}
}

func (suite *ClientIntegrationTestSuite) TestGetMissingKey() {
	val, ok, err := suite.client.Get(context.Background(), "missing")
	suite.Require().NoError(err)
	suite.False(ok)
	suite.Nil(val)
}

func (suite *ClientIntegrationTestSuite) TestSetThenGet() {
	ctx := context.Background()
	suite.Require().NoError(suite.client.Set(ctx, "k", []byte(`{"a":1}`), time.Minute))

	val, ok, err := suite.client.Get(ctx, "k")
	suite.Require().NoError(err)
	suite.True(ok)
	suite.JSONEq(`{"a":1}`, string(val))
}

func (suite *ClientIntegrationTestSuite) TestCounters() {
	ctx := context.Background()

	n, err := suite.client.GetCounter(ctx, "cache_version:orders:biz-1")
	suite.Require().NoError(err)
	suite.Zero(n)

	n, err = suite.client.Incr(ctx, "cache_version:orders:biz-1")
	suite.Require().NoError(err)
	suite.EqualValues(1, n)

	n, err = suite.client.GetCounter(ctx, "cache_version:orders:biz-1")
	suite.Require().NoError(err)
	suite.EqualValues(1, n)
}

func (suite *ClientIntegrationTestSuite) TestTrackingSnapshot() {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	snap := models.TrackingSnapshot{OrderID: "ord-1", Status: models.StatusOnTheWay, RiderID: "rider-1", UpdatedAt: now}
	suite.Require().NoError(suite.client.SetTrackingSnapshot(ctx, "tok-1", snap, time.Hour))

	got, err := suite.client.GetTrackingSnapshot(ctx, "tok-1")
	suite.Require().NoError(err)
	suite.Equal(snap.OrderID, got.OrderID)
	suite.Equal(snap.Status, got.Status)
	suite.True(now.Equal(got.UpdatedAt))

	ttl, err := suite.client.rdb.TTL(ctx, "tracking:tok-1").Result()
	suite.Require().NoError(err)
	suite.Greater(ttl, time.Duration(0))

	missing, err := suite.client.GetTrackingSnapshot(ctx, "tok-unknown")
	suite.Require().NoError(err)
	suite.Nil(missing)
}

func (suite *ClientIntegrationTestSuite) TestLock() {
	ctx := context.Background()

	ok, err := suite.client.AcquireLock(ctx, "sweep", time.Minute)
	suite.Require().NoError(err)
	suite.True(ok)

	ok, err = suite.client.AcquireLock(ctx, "sweep", time.Minute)
	suite.Require().NoError(err)
	suite.False(ok)

	suite.Require().NoError(suite.client.ReleaseLock(ctx, "sweep"))
}
