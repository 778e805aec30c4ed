package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	apperrors "github.com/wfunc/card-battle/internal/errors"
	"github.com/wfunc/card-battle/internal/models"
	"gorm.io/gorm"
)

// UserRepositoryTestSuite 用户仓储测试套件
type UserRepositoryTestSuite struct {
	suite.Suite
	db   *gorm.DB
	repo UserRepository
}

func (suite *UserRepositoryTestSuite) SetupTest() {
	suite.db = SetupTestDB()
	suite.repo = NewUserRepository(suite.db)
}

func (suite *UserRepositoryTestSuite) TearDownTest() {
	CleanupTestDB(suite.db)
}

// TestUserRepository_Create 测试创建用户
func (suite *UserRepositoryTestSuite) TestUserRepository_Create() {
	ctx := context.Background()

	user := &models.User{
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: "hash",
	}
	err := suite.repo.Create(ctx, user)
	assert.NoError(suite.T(), err)
	assert.NotEmpty(suite.T(), user.ID)

	found, err := suite.repo.FindByID(ctx, user.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), "alice", found.Username)
	assert.True(suite.T(), found.IsActive())

	// 用户名重复
	err = suite.repo.Create(ctx, &models.User{Username: "alice", PasswordHash: "x"})
	assert.True(suite.T(), apperrors.Is(err, apperrors.ErrUserExists))
}

// TestUserRepository_FindByUsername 测试根据用户名查找
func (suite *UserRepositoryTestSuite) TestUserRepository_FindByUsername() {
	ctx := context.Background()
	user := CreateTestUser(suite.T(), suite.db, "bob")

	found, err := suite.repo.FindByUsername(ctx, "bob")
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), user.ID, found.ID)

	_, err = suite.repo.FindByUsername(ctx, "notexist")
	assert.Error(suite.T(), err)
	assert.Equal(suite.T(), apperrors.KindNotFound, apperrors.KindOf(err))
}

// TestUserRepository_RecordResult 测试胜负统计
func (suite *UserRepositoryTestSuite) TestUserRepository_RecordResult() {
	ctx := context.Background()
	winner := CreateTestUser(suite.T(), suite.db, "winner")
	loser := CreateTestUser(suite.T(), suite.db, "loser")

	assert.NoError(suite.T(), suite.repo.RecordResult(ctx, winner.ID, loser.ID))
	assert.NoError(suite.T(), suite.repo.RecordResult(ctx, winner.ID, "guest-not-registered"))

	w, _ := suite.repo.FindByID(ctx, winner.ID)
	l, _ := suite.repo.FindByID(ctx, loser.ID)
	assert.Equal(suite.T(), 2, w.Wins)
	assert.Equal(suite.T(), 0, w.Losses)
	assert.Equal(suite.T(), 1, l.Losses)

	users, err := suite.repo.GetAll(ctx, NewPagination(1, 10))
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), users, 2)
	assert.Equal(suite.T(), winner.ID, users[0].ID)
}

// TestUserRepository_UpdateLastLogin 测试更新登录时间
func (suite *UserRepositoryTestSuite) TestUserRepository_UpdateLastLogin() {
	ctx := context.Background()
	user := CreateTestUser(suite.T(), suite.db, "carol")

	assert.NoError(suite.T(), suite.repo.UpdateLastLogin(ctx, user.ID))
	found, _ := suite.repo.FindByID(ctx, user.ID)
	assert.NotNil(suite.T(), found.LastLoginAt)
}

func TestUserRepositorySuite(t *testing.T) {
	suite.Run(t, new(UserRepositoryTestSuite))
}

func TestUniqueViolationFromIndex(t *testing.T) {
	db := TestDB(t)
	CreateTestUser(t, db, "dup")

	// 绕过先查后插，直接撞唯一索引
	err := db.Create(&models.User{Username: "dup", PasswordHash: "hash"}).Error
	require.Error(t, err)
	assert.True(t, isUniqueViolation(err))
	assert.False(t, isUniqueViolation(nil))
}
