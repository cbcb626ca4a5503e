package chat

import (
	"fmt"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, kind Kind) *Server {
	t.Helper()
	server, err := NewServer(kind, 5, "alpha", NewCounter())
	require.NoError(t, err)
	return server
}

func TestNewServerValidatesNodeNumber(t *testing.T) {
	counter := NewCounter()
	for _, node := range []int{0, 1, 255} {
		_, err := NewServer(Public, node, "alpha", counter)
		require.NoError(t, err)
	}
	for _, node := range []int{-1, 256, 300} {
		_, err := NewServer(Public, node, "alpha", counter)
		require.ErrorIs(t, err, ErrInvalidNodeNumber)
	}
}

func TestConnectUserRoles(t *testing.T) {
	server := newTestServer(t, Public)

	guest := server.ConnectUser("")
	require.Equal(t, Guest, guest.Role)
	require.Equal(t, 2, guest.ID)
	require.Equal(t, "guest", guest.Name)
	require.True(t, guest.Connected)

	bob := server.ConnectUser("bob")
	require.Equal(t, Member, bob.Role)
	require.Equal(t, 3, bob.ID)
	require.Equal(t, "bob", bob.Name)

	admin := server.ConnectUser("admin")
	require.Equal(t, Admin, admin.Role)
	require.Equal(t, AdminID, admin.ID)
	require.Equal(t, "admin", admin.Name)
}

func TestNonAdminIDsAreUniqueAndIncreasing(t *testing.T) {
	server := newTestServer(t, Public)

	previous := 1
	for i := 0; i < 5; i++ {
		user := server.ConnectUser(fmt.Sprintf("user%d", i))
		require.Greater(t, user.ID, previous)
		previous = user.ID
	}
}

func TestReconnectReusesRecord(t *testing.T) {
	server := newTestServer(t, Public)

	bob := server.ConnectUser("bob")
	_, err := server.AddMessage(bob, "hi")
	require.NoError(t, err)
	require.NoError(t, server.DisconnectUser(bob.ID))
	require.False(t, bob.Connected)

	again := server.ConnectUser("bob")
	require.Same(t, bob, again)
	require.True(t, again.Connected)
	require.True(t, again.Joined) // flags preserved across reconnect
	require.Equal(t, bob.ID, again.ID)
}

func TestDisconnectUnknownUser(t *testing.T) {
	server := newTestServer(t, Public)
	require.ErrorIs(t, server.DisconnectUser(42), ErrUserNotFound)
}

func TestChangeRoleToggles(t *testing.T) {
	server := newTestServer(t, Public)
	bob := server.ConnectUser("bob")

	role, err := server.ChangeRole(bob.ID)
	require.NoError(t, err)
	require.Equal(t, Admin, role)

	role, err = server.ChangeRole(bob.ID)
	require.NoError(t, err)
	require.Equal(t, Member, role)
}

func TestChangeRoleRejectsGuestsAndUnknown(t *testing.T) {
	server := newTestServer(t, Public)
	guest := server.ConnectUser("")

	_, err := server.ChangeRole(guest.ID)
	require.ErrorIs(t, err, ErrGuestRole)
	require.Equal(t, Guest, guest.Role)

	_, err = server.ChangeRole(42)
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestAddMessageFirstJoin(t *testing.T) {
	server := newTestServer(t, Public)
	server.ConnectUser("")
	bob := server.ConnectUser("bob")

	info, err := server.AddMessage(bob, "hi")
	require.NoError(t, err)
	require.Equal(t, "bob joined the chat", info.Logs)
	require.Equal(t, "bob: hi", info.Message)
	require.True(t, bob.Joined)
	require.True(t, bob.UsedAPI)

	info, err = server.AddMessage(bob, "yo")
	require.NoError(t, err)
	require.Empty(t, info.Logs)
	require.Equal(t, "bob: yo", info.Message)
}

func TestAddMessageRejectsGuests(t *testing.T) {
	server := newTestServer(t, Public)
	guest := server.ConnectUser("")

	_, err := server.AddMessage(guest, "hello")
	require.ErrorIs(t, err, ErrGuestChat)
	require.False(t, guest.Joined)
	require.Empty(t, server.Messages(server.ConnectUser("bob")))
}

func TestLeaveChat(t *testing.T) {
	server := newTestServer(t, Public)
	bob := server.ConnectUser("bob")

	_, ok := server.LeaveChat(bob)
	require.False(t, ok) // never joined

	_, err := server.AddMessage(bob, "hi")
	require.NoError(t, err)

	info, ok := server.LeaveChat(bob)
	require.True(t, ok)
	require.Equal(t, "bob left the chat", info.Logs)
	require.False(t, bob.Joined)

	// rejoining produces a fresh join line
	info, err = server.AddMessage(bob, "back")
	require.NoError(t, err)
	require.Equal(t, "bob joined the chat", info.Logs)
}

func TestMessagesTruncatesToFirstFifty(t *testing.T) {
	server := newTestServer(t, Public)
	bob := server.ConnectUser("bob")

	for i := 0; i < 60; i++ {
		_, err := server.AddMessage(bob, fmt.Sprintf("m%d", i))
		require.NoError(t, err)
	}

	history := server.Messages(bob)
	require.Len(t, history, 50)
	require.Equal(t, "bob: m0", history[0])
	require.Equal(t, "bob: m49", history[49])
	require.True(t, bob.UsedAPI)
}

func TestBlockedUserCannotPost(t *testing.T) {
	server := newTestServer(t, Private)
	bob := server.ConnectUser("bob")

	id, err := server.BlockUser(bob.ID)
	require.NoError(t, err)
	require.Equal(t, bob.ID, id)
	require.True(t, bob.Blocked)

	info, err := server.AddMessage(bob, "x")
	require.NoError(t, err)
	require.Equal(t, BlockedNotice, info.Logs)
	require.Empty(t, info.Message)
	require.Empty(t, server.Messages(bob))

	// blocking again leaves the user unchanged
	_, err = server.BlockUser(bob.ID)
	require.NoError(t, err)
	require.True(t, bob.Blocked)
}

func TestBlockedGuestGetsBlockedNotice(t *testing.T) {
	server := newTestServer(t, Private)
	guest := server.ConnectUser("")

	_, err := server.BlockUser(guest.ID)
	require.NoError(t, err)

	// the block guard runs before the guest guard
	info, err := server.AddMessage(guest, "x")
	require.NoError(t, err)
	require.Equal(t, BlockedNotice, info.Logs)
}

func TestBlockUnknownUser(t *testing.T) {
	server := newTestServer(t, Private)
	_, err := server.BlockUser(42)
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestBlockedFlagIgnoredOnPublicServer(t *testing.T) {
	server := newTestServer(t, Public)
	bob := server.ConnectUser("bob")
	bob.Blocked = true

	info, err := server.AddMessage(bob, "hi")
	require.NoError(t, err)
	require.Equal(t, "bob: hi", info.Message)
}

func TestNodeContract(t *testing.T) {
	server := newTestServer(t, Public)
	require.Equal(t, "alpha", server.GetName())

	server.Connect("beta")
	server.Connect("gamma")
	require.Equal(t, []string{"beta", "gamma"}, server.Peers())
}

func TestCheckAPIUsage(t *testing.T) {
	mock := clock.NewMock()
	server, err := NewServerWithClock(Public, 5, "alpha", NewCounter(), mock, 60*time.Second)
	require.NoError(t, err)
	bob := server.ConnectUser("bob")

	probe := server.CheckAPIUsage(bob)

	// usage during the wait is observed at fire time
	_, err = server.AddMessage(bob, "hi")
	require.NoError(t, err)
	mock.Add(60 * time.Second)

	used, ok := <-probe.Result()
	require.True(t, ok)
	require.True(t, used)

	fresh := server.ConnectUser("carol")
	probe = server.CheckAPIUsage(fresh)
	mock.Add(60 * time.Second)
	used, ok = <-probe.Result()
	require.True(t, ok)
	require.False(t, used)
}
