package stream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rxtech-lab/radx/e2e/mockserver"
	"github.com/rxtech-lab/radx/internal/logger"
	"github.com/rxtech-lab/radx/mocks"
	"github.com/rxtech-lab/radx/pkg/errors"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

const contractID = "CON.F.US.EP.H25"

type MarketHubTestSuite struct {
	suite.Suite
	server *mockserver.MockTopstepServer
	logger *logger.Logger
	ctrl   *gomock.Controller
	creds  *mocks.MockCredentialSource

	mu       sync.Mutex
	received []Trade
}

func TestMarketHubSuite(t *testing.T) {
	suite.Run(t, new(MarketHubTestSuite))
}

func (suite *MarketHubTestSuite) SetupTest() {
	loggerConfig := zap.NewDevelopmentConfig()
	loggerConfig.OutputPaths = []string{}
	loggerConfig.ErrorOutputPaths = []string{}
	zapLogger, err := loggerConfig.Build()
	suite.Require().NoError(err)
	suite.logger = &logger.Logger{Logger: zapLogger}

	suite.server = mockserver.NewMockTopstepServer(mockserver.ServerConfig{UserName: "trader", APIKey: "secret"})
	suite.Require().NoError(suite.server.Start())

	suite.ctrl = gomock.NewController(suite.T())
	suite.creds = mocks.NewMockCredentialSource(suite.ctrl)
	suite.received = nil
}

func (suite *MarketHubTestSuite) TearDownTest() {
	suite.ctrl.Finish()
	suite.NoError(suite.server.Stop())
}

func (suite *MarketHubTestSuite) handler(id string, trades []Trade) {
	suite.mu.Lock()
	defer suite.mu.Unlock()

	if id == contractID {
		suite.received = append(suite.received, trades...)
	}
}

func (suite *MarketHubTestSuite) receivedCount() int {
	suite.mu.Lock()
	defer suite.mu.Unlock()

	return len(suite.received)
}

func (suite *MarketHubTestSuite) newHub() *MarketHub {
	hub, err := NewMarketHub(Config{
		URL:                  suite.server.MarketHubURL(),
		MaxReconnectAttempts: 3,
		PingInterval:         50 * time.Millisecond,
		InitialBackoff:       10 * time.Millisecond,
	}, suite.creds, suite.handler, suite.logger)
	suite.Require().NoError(err)

	return hub
}

func (suite *MarketHubTestSuite) start(hub *MarketHub) (context.CancelFunc, <-chan error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- hub.Run(ctx)
	}()

	return cancel, done
}

func (suite *MarketHubTestSuite) TestReceivesSubscribedTrades() {
	suite.creds.EXPECT().Token(gomock.Any()).DoAndReturn(func(context.Context) (string, error) {
		return suite.server.IssueToken(), nil
	}).AnyTimes()

	hub := suite.newHub()
	suite.Require().NoError(hub.Subscribe(contractID))

	cancel, done := suite.start(hub)

	suite.Eventually(func() bool { return suite.server.Subscribers(contractID) == 1 }, 2*time.Second, 10*time.Millisecond)

	now := time.Date(2025, 3, 10, 9, 1, 0, 0, time.UTC)
	suite.Require().NoError(suite.server.PublishTrades(contractID, []mockserver.Trade{
		{Price: 5800.25, Timestamp: now, Volume: 2},
		{Price: 5800.5, Timestamp: now.Add(time.Second), Volume: 1},
	}))
	suite.Require().NoError(suite.server.PublishTrades("CON.F.US.MES.H25", []mockserver.Trade{{Price: 1, Timestamp: now}}))

	suite.Eventually(func() bool { return suite.receivedCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	suite.mu.Lock()
	suite.Equal(5800.25, suite.received[0].Price)
	suite.True(now.Equal(suite.received[0].Timestamp))
	suite.Equal(int64(2), suite.received[0].Volume)
	suite.mu.Unlock()

	cancel()
	suite.NoError(<-done)
}

func (suite *MarketHubTestSuite) TestSubscribeWhileConnected() {
	suite.creds.EXPECT().Token(gomock.Any()).DoAndReturn(func(context.Context) (string, error) {
		return suite.server.IssueToken(), nil
	}).AnyTimes()

	hub := suite.newHub()
	cancel, done := suite.start(hub)
	defer func() {
		cancel()
		suite.NoError(<-done)
	}()

	suite.Eventually(func() bool { return hub.Connects() == 1 }, 2*time.Second, 10*time.Millisecond)
	suite.Require().NoError(hub.Subscribe(contractID))
	suite.Require().NoError(hub.Subscribe(contractID))

	suite.Eventually(func() bool { return suite.server.Subscribers(contractID) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func (suite *MarketHubTestSuite) TestReconnectResubscribes() {
	suite.creds.EXPECT().Token(gomock.Any()).DoAndReturn(func(context.Context) (string, error) {
		return suite.server.IssueToken(), nil
	}).MinTimes(2)

	hub := suite.newHub()
	suite.Require().NoError(hub.Subscribe(contractID))

	cancel, done := suite.start(hub)
	defer func() {
		cancel()
		suite.NoError(<-done)
	}()

	suite.Eventually(func() bool { return suite.server.Subscribers(contractID) == 1 }, 2*time.Second, 10*time.Millisecond)

	suite.server.DropConnections()

	suite.Eventually(func() bool { return hub.Connects() >= 2 }, 2*time.Second, 10*time.Millisecond)
	suite.Eventually(func() bool { return suite.server.Subscribers(contractID) == 1 }, 2*time.Second, 10*time.Millisecond)

	suite.Require().NoError(suite.server.PublishTrades(contractID, []mockserver.Trade{{Price: 5801, Timestamp: time.Now()}}))
	suite.Eventually(func() bool { return suite.receivedCount() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func (suite *MarketHubTestSuite) TestUnauthorizedGivesUp() {
	suite.creds.EXPECT().Token(gomock.Any()).Return("bogus", nil).Times(3)
	suite.creds.EXPECT().Refresh(gomock.Any()).Return("still-bogus", nil).Times(3)

	hub := suite.newHub()
	suite.Require().NoError(hub.Subscribe(contractID))

	err := hub.Run(context.Background())
	suite.Equal(errors.ErrCodeStreamFailed, errors.GetCode(err))
	suite.Equal(0, hub.Connects())
}

func (suite *MarketHubTestSuite) TestRefreshAfterRejectedToken() {
	suite.creds.EXPECT().Token(gomock.Any()).Return("stale", nil)
	suite.creds.EXPECT().Refresh(gomock.Any()).DoAndReturn(func(context.Context) (string, error) {
		return suite.server.IssueToken(), nil
	})

	hub := suite.newHub()
	cancel, done := suite.start(hub)

	suite.Eventually(func() bool { return hub.Connects() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	suite.NoError(<-done)
}

func (suite *MarketHubTestSuite) TestConfigValidation() {
	_, err := NewMarketHub(Config{URL: "not a url"}, suite.creds, suite.handler, suite.logger)
	suite.Equal(errors.ErrCodeInvalidConfiguration, errors.GetCode(err))

	_, err = NewMarketHub(Config{URL: suite.server.MarketHubURL()}, nil, suite.handler, suite.logger)
	suite.Equal(errors.ErrCodeMissingParameter, errors.GetCode(err))

	_, err = NewMarketHub(Config{URL: suite.server.MarketHubURL()}, suite.creds, nil, suite.logger)
	suite.Equal(errors.ErrCodeMissingParameter, errors.GetCode(err))
}
