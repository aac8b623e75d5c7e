package strategy

import (
	"testing"

	"github.com/rxtech-lab/radx/internal/types"
	"github.com/rxtech-lab/radx/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type RegistryTestSuite struct {
	suite.Suite
	instrument types.Instrument
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistryTestSuite))
}

func (suite *RegistryTestSuite) SetupTest() {
	suite.instrument = types.Instrument{Symbol: "ES", TickSize: decimal.RequireFromString("0.25")}
}

func (suite *RegistryTestSuite) TestDefaultRegistry() {
	r := DefaultRegistry()
	suite.Equal([]string{"default", "ma_crossover"}, r.List())

	s, err := r.Create("Default", suite.instrument)
	suite.Require().NoError(err)
	suite.Equal(MACrossoverName, s.Name())

	s, err = r.Create("MA_CROSSOVER", suite.instrument)
	suite.Require().NoError(err)
	suite.NotNil(s)
}

func (suite *RegistryTestSuite) TestUnknownStrategy() {
	_, err := DefaultRegistry().Create("scalper", suite.instrument)
	suite.Equal(errors.ErrCodeStrategyNotFound, errors.GetCode(err))
}

func (suite *RegistryTestSuite) TestDuplicateRegistration() {
	r := NewRegistry()
	suite.NoError(r.Register("mine", NewMACrossover))

	err := r.Register("MINE", NewMACrossover)
	suite.Equal(errors.ErrCodeStrategyAlreadyRegistered, errors.GetCode(err))
}

func (suite *RegistryTestSuite) TestConstructorErrorsPropagate() {
	_, err := DefaultRegistry().Create("default", types.Instrument{})
	suite.Equal(errors.ErrCodeInvalidParameter, errors.GetCode(err))
}
