package history_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/slok/scriptrun/internal/app/history"
	"github.com/slok/scriptrun/internal/model"
	"github.com/slok/scriptrun/internal/storage"
	"github.com/slok/scriptrun/internal/storage/storagemock"
)

func TestNewService(t *testing.T) {
	tests := map[string]struct {
		cfg    history.ServiceConfig
		expErr bool
	}{
		"Valid configuration should create service successfully": {
			cfg: history.ServiceConfig{Repository: &storagemock.MockResultRepository{}},
		},

		"Missing repository should fail": {
			cfg:    history.ServiceConfig{},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			svc, err := history.NewService(test.cfg)
			if test.expErr {
				assert.Error(t, err)
				assert.Nil(t, svc)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, svc)
			}
		})
	}
}

func TestServiceRun(t *testing.T) {
	failed := model.ExecutionStatusFailed

	tests := map[string]struct {
		mock       func(m *storagemock.MockResultRepository)
		req        history.Request
		expResults []model.ExecutionResult
		expErr     bool
	}{
		"Listing without filters should list everything": {
			mock: func(m *storagemock.MockResultRepository) {
				m.On("ListResults", mock.Anything, storage.ListResultsOpts{}).Once().Return([]model.ExecutionResult{{ID: "a"}, {ID: "b"}}, nil)
			},
			expResults: []model.ExecutionResult{{ID: "a"}, {ID: "b"}},
		},

		"Listing with a status filter and a limit should pass them to the repository": {
			mock: func(m *storagemock.MockResultRepository) {
				m.On("ListResults", mock.Anything, storage.ListResultsOpts{Status: model.ExecutionStatusFailed, Limit: 5}).Once().Return([]model.ExecutionResult{{ID: "a", Status: failed}}, nil)
			},
			req:        history.Request{StatusFilter: &failed, Limit: 5},
			expResults: []model.ExecutionResult{{ID: "a", Status: failed}},
		},

		"A negative limit should fail": {
			mock:   func(m *storagemock.MockResultRepository) {},
			req:    history.Request{Limit: -1},
			expErr: true,
		},

		"A repository error should fail": {
			mock: func(m *storagemock.MockResultRepository) {
				m.On("ListResults", mock.Anything, mock.Anything).Once().Return(nil, errors.New("whatever"))
			},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			mRepo := storagemock.NewMockResultRepository(t)
			test.mock(mRepo)

			svc, err := history.NewService(history.ServiceConfig{Repository: mRepo})
			assert.NoError(err)

			results, err := svc.Run(context.Background(), test.req)
			if test.expErr {
				assert.Error(err)
			} else if assert.NoError(err) {
				assert.Equal(test.expResults, results)
			}
		})
	}
}
