package ie

import (
	"testing"

	"github.com/stretchr/testify/require"
	gomock "go.uber.org/mock/gomock"
)

func TestRegistryRegisterAndNew(t *testing.T) {
	ctrl := gomock.NewController(t)
	proto := NewMockIE(ctrl)
	proto.EXPECT().Category().Return(CategoryObject).AnyTimes()
	proto.EXPECT().Type().Return(uint16(7)).AnyTimes()
	proto.EXPECT().Subtype().Return(uint8(0)).AnyTimes()

	fresh := NewMockIE(ctrl)
	proto.EXPECT().NewInstance().Return(fresh)

	r := NewRegistry()
	r.Register(proto)

	require.True(t, r.Lookup(CategoryObject, 7, 0))
	got, err := r.New(CategoryObject, 7, 0)
	require.NoError(t, err)
	require.Same(t, fresh, got)
}

func TestRegistryNewFallsBackThenFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	r := NewRegistry()

	_, err := r.New(CategoryParameter, 1, 0)
	var wrongType *WrongType
	require.ErrorAs(t, err, &wrongType)

	raw := NewMockIE(ctrl)
	r.RegisterFallback(CategoryParameter, func(typ uint16, subtype uint8) IE { return raw })

	got, err := r.New(CategoryParameter, 1, 0)
	require.NoError(t, err)
	require.Same(t, raw, got)
	require.False(t, r.Lookup(CategoryParameter, 1, 0), "a fallback constructor is not a registered prototype")
}

func TestRegistryCompatible(t *testing.T) {
	r := NewRegistry()
	require.True(t, r.Compatible(DefaultCoding), "no constraint set means everything is compatible")

	require.NoError(t, r.SetSupportedCodings(">= 2"))
	require.False(t, r.Compatible(1))
	require.True(t, r.Compatible(2))
}
