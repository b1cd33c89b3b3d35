package vecdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_IntSet_Insert_Is_Idempotent_And_Keeps_Sorted_Order(t *testing.T) {
	t.Parallel()

	s := &intSet{}
	s.insert(5)
	s.insert(1)
	s.insert(3)
	s.insert(1)

	assert.Equal(t, []int{1, 3, 5}, s.sorted())
}

func Test_IntSet_PopFirst_Removes_Smallest(t *testing.T) {
	t.Parallel()

	s := newIntSetFrom([]int{3, 1, 2})
	v, ok := s.popFirst()
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, []int{2, 3}, s.sorted())
}

func Test_IntSet_RetainLess_Drops_Everything_GE_N(t *testing.T) {
	t.Parallel()

	s := newIntSetFrom([]int{1, 2, 3, 4, 5})
	s.retainLess(3)
	assert.Equal(t, []int{1, 2}, s.sorted())
}

func Test_IntMap_Set_Overwrites_Existing_Key(t *testing.T) {
	t.Parallel()

	m := &intMap[int]{}
	m.set(1, 10)
	m.set(2, 20)
	m.set(1, 99)

	v, ok := m.get(1)
	assert.True(t, ok)
	assert.Equal(t, 99, v)
	keys, vals := m.items()
	assert.Equal(t, []int{1, 2}, keys)
	assert.Equal(t, []int{99, 20}, vals)
}

func Test_IntMap_RetainLess_Drops_Keys_GE_N(t *testing.T) {
	t.Parallel()

	m := &intMap[int]{}
	m.set(1, 1)
	m.set(5, 5)
	m.set(10, 10)

	m.retainLess(5)
	keys, _ := m.items()
	assert.Equal(t, []int{1}, keys)
}
