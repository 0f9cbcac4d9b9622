package show_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/slok/scriptrun/internal/app/show"
	"github.com/slok/scriptrun/internal/model"
	"github.com/slok/scriptrun/internal/storage/storagemock"
)

func TestServiceRun(t *testing.T) {
	tests := map[string]struct {
		mock      func(m *storagemock.MockResultRepository)
		req       show.Request
		expResult *model.ExecutionResult
		expErr    error
	}{
		"Showing an existing execution should return it": {
			mock: func(m *storagemock.MockResultRepository) {
				m.On("GetResult", mock.Anything, "id-1").Once().Return(&model.ExecutionResult{ID: "id-1", Status: model.ExecutionStatusCompleted}, nil)
			},
			req:       show.Request{ID: " id-1 "},
			expResult: &model.ExecutionResult{ID: "id-1", Status: model.ExecutionStatusCompleted},
		},

		"Showing a missing execution should fail with not found": {
			mock: func(m *storagemock.MockResultRepository) {
				m.On("GetResult", mock.Anything, "id-1").Once().Return(nil, fmt.Errorf("result id-1: %w", model.ErrNotFound))
			},
			req:    show.Request{ID: "id-1"},
			expErr: model.ErrNotFound,
		},

		"Showing without id should fail": {
			mock:   func(m *storagemock.MockResultRepository) {},
			req:    show.Request{},
			expErr: model.ErrNotValid,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			mRepo := storagemock.NewMockResultRepository(t)
			test.mock(mRepo)

			svc, err := show.NewService(show.ServiceConfig{Repository: mRepo})
			assert.NoError(err)

			res, err := svc.Run(context.Background(), test.req)
			if test.expErr != nil {
				assert.True(errors.Is(err, test.expErr))
			} else if assert.NoError(err) {
				assert.Equal(test.expResult, res)
			}
		})
	}
}
