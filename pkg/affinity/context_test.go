package affinity

//
//Copyright 2019 Telenor Digital AS
//
//Licensed under the Apache License, Version 2.0 (the "License");
//you may not use this file except in compliance with the License.
//You may obtain a copy of the License at
//
//http://www.apache.org/licenses/LICENSE-2.0
//
//Unless required by applicable law or agreed to in writing, software
//distributed under the License is distributed on an "AS IS" BASIS,
//WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//See the License for the specific language governing permissions and
//limitations under the License.
//
import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContextInit(t *testing.T) {
	assert := require.New(t)

	ctx := NewContext(2)
	assert.Nil(ctx.Plan())
	assert.Equal(2, ctx.Cores())

	_, err := NewOwnerTable(ctx, DefaultParameters(), nil)
	assert.ErrorIs(err, ErrNotInitialized)

	assert.ErrorIs(ctx.InitAssignment([]int{0, 2}), ErrInvalidCore)
	assert.ErrorIs(ctx.InitAssignment([]int{}), ErrUnknownGroup)
	assert.Nil(ctx.Plan(), "Failed init should not store a plan")

	assert.NoError(ctx.InitAssignment([]int{0, 1, 1}))
	assert.NotNil(ctx.Plan())
	assert.Equal(3, ctx.Plan().Groups())
	assert.ErrorIs(ctx.InitAssignment([]int{0}), ErrAlreadyInitialized)
	assert.Equal(3, ctx.Plan().Groups(), "Plan should be unchanged by the second init")

	assert.Equal(uint64(0), ctx.Generation())
	assert.Equal(uint64(1), ctx.nextGeneration())
	assert.Equal(uint64(1), ctx.Generation())

	assert.ErrorIs(NewContext(0).InitAssignment([]int{0}), ErrInvalidCore)
}
