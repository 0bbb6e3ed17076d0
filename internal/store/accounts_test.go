// ABOUTME: Tests for account registration, authentication, deletion paths, and promotion
// ABOUTME: Includes the end-to-end register/authenticate/delete lifecycle

package store

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/messenger/internal/snowflake"
)

func TestAccounts_Register(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	token, err := db.Accounts.Register(ctx, "alice", "pw")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	// Token format: base64url(decimal id) "." base64url(secret)
	parts := strings.SplitN(token, ".", 2)
	require.Len(t, parts, 2)
	assert.NotEmpty(t, parts[0])
	assert.NotEmpty(t, parts[1])

	acc, err := db.Accounts.Lookup(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", acc.Name)
	assert.Equal(t, snowflake.TagUser, snowflake.TypeOf(acc.ID))
}

func TestAccounts_Register_NumericNameRejected(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.Accounts.Register(context.Background(), "42", "pw")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestAccounts_Register_DuplicateRejected(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.Accounts.Register(ctx, "alice", "pw")
	require.NoError(t, err)

	_, err = db.Accounts.Register(ctx, "alice", "other")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestAccounts_Register_EmptyFieldsRejected(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.Accounts.Register(ctx, "", "pw")
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = db.Accounts.Register(ctx, "alice", "")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestAccounts_Register_MalformedUTF8Rejected(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.Accounts.Register(context.Background(), "al\xffce", "pw")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestAccounts_NameStoredEncoded(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.Accounts.Register(ctx, "alice", "pw")
	require.NoError(t, err)

	var stored string
	require.NoError(t, db.db.QueryRow(`SELECT name FROM accounts`).Scan(&stored))
	assert.NotEqual(t, "alice", stored)
}

func TestAccounts_SamePasswordDifferentHashes(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.Accounts.Register(ctx, "alice", "shared")
	require.NoError(t, err)
	_, err = db.Accounts.Register(ctx, "bob", "shared")
	require.NoError(t, err)

	// The id salt binds each hash to its account.
	var hashes []string
	rows, err := db.db.Query(`SELECT password_hash FROM accounts`)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var h string
		require.NoError(t, rows.Scan(&h))
		hashes = append(hashes, h)
	}
	require.NoError(t, rows.Err())
	require.Len(t, hashes, 2)
	assert.NotEqual(t, hashes[0], hashes[1])
}

func TestAccounts_EndToEndLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	token, err := db.Accounts.Register(ctx, "bob", "secret")
	require.NoError(t, err)

	got, err := db.Accounts.Authenticate(ctx, "bob", "secret")
	require.NoError(t, err)
	assert.Equal(t, token, got)

	_, err = db.Accounts.Authenticate(ctx, "bob", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	err = db.Accounts.DeleteByToken(ctx, token, "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, db.Accounts.DeleteByToken(ctx, token, "secret"))

	_, err = db.Accounts.Lookup(ctx, "bob")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAccounts_Authenticate_UnknownName(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.Accounts.Authenticate(context.Background(), "ghost", "pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAccounts_DeleteByToken_UnknownToken(t *testing.T) {
	db := setupTestDB(t)

	err := db.Accounts.DeleteByToken(context.Background(), "no-such-token", "pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAccounts_DeleteByID(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.Accounts.Register(ctx, "alice", "pw")
	require.NoError(t, err)
	acc, err := db.Accounts.Lookup(ctx, "alice")
	require.NoError(t, err)

	require.NoError(t, db.Accounts.DeleteByID(ctx, acc.ID))

	_, err = db.Accounts.Lookup(ctx, "alice")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAccounts_DeleteByID_MissingAccount(t *testing.T) {
	db := setupTestDB(t)

	gen := snowflake.NewGenerator()
	err := db.Accounts.DeleteByID(context.Background(), gen.Next(snowflake.TagUser))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAccounts_DeleteByID_AdminForbidden(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.Accounts.Register(ctx, "root", "pw")
	require.NoError(t, err)
	acc, err := db.Accounts.Lookup(ctx, "root")
	require.NoError(t, err)

	adminID, err := db.Accounts.Promote(ctx, acc.ID, snowflake.TagAdmin)
	require.NoError(t, err)

	err = db.Accounts.DeleteByID(ctx, adminID)
	assert.ErrorIs(t, err, ErrForbidden)

	// The account must still be there, under its new id.
	got, err := db.Accounts.Lookup(ctx, adminID.String())
	require.NoError(t, err)
	assert.Equal(t, "root", got.Name)
}

func TestAccounts_Lookup_ByIDAndByName(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.Accounts.Register(ctx, "alice", "pw")
	require.NoError(t, err)

	byName, err := db.Accounts.Lookup(ctx, "alice")
	require.NoError(t, err)

	byID, err := db.Accounts.Lookup(ctx, byName.ID.String())
	require.NoError(t, err)
	assert.Equal(t, byName.ID, byID.ID)
	assert.Equal(t, "alice", byID.Name)
}

func TestAccounts_LookupByToken(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	token, err := db.Accounts.Register(ctx, "alice", "pw")
	require.NoError(t, err)

	acc, err := db.Accounts.LookupByToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "alice", acc.Name)
	assert.Equal(t, token, acc.Token)

	_, err = db.Accounts.LookupByToken(ctx, "bogus")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAccounts_Promote(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.Accounts.Register(ctx, "alice", "pw")
	require.NoError(t, err)
	acc, err := db.Accounts.Lookup(ctx, "alice")
	require.NoError(t, err)

	newID, err := db.Accounts.Promote(ctx, acc.ID, snowflake.TagAdmin)
	require.NoError(t, err)
	assert.Equal(t, snowflake.TagAdmin, snowflake.TypeOf(newID))
	assert.Equal(t, snowflake.TimeOf(acc.ID), snowflake.TimeOf(newID))

	// The old id is gone; the new one resolves.
	_, err = db.Accounts.Lookup(ctx, acc.ID.String())
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := db.Accounts.Lookup(ctx, newID.String())
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Name)
}

func TestAccounts_Promote_MissingAccount(t *testing.T) {
	db := setupTestDB(t)

	gen := snowflake.NewGenerator()
	_, err := db.Accounts.Promote(context.Background(), gen.Next(snowflake.TagUser), snowflake.TagAdmin)
	assert.ErrorIs(t, err, ErrNotFound)
}
