package service

import (
	"testing"

	"amazing-kissan-go/internal/model"
	"amazing-kissan-go/pkg/hash"
	"amazing-kissan-go/pkg/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// memoryUserRepo 是用户持久层的内存替身。
type memoryUserRepo struct {
	users map[string]*model.User
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{users: make(map[string]*model.User)}
}

func (r *memoryUserRepo) Create(user *model.User) error {
	user.ID = uint(len(r.users) + 1)
	r.users[user.Username] = user
	return nil
}

func (r *memoryUserRepo) FindByUsername(username string) (*model.User, error) {
	user, ok := r.users[username]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return user, nil
}

func (r *memoryUserRepo) FindByEmail(email string) (*model.User, error) {
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memoryUserRepo) FindByUsernameOrEmail(identifier string) (*model.User, error) {
	if user, err := r.FindByUsername(identifier); err == nil {
		return user, nil
	}
	return r.FindByEmail(identifier)
}

func (r *memoryUserRepo) Update(user *model.User) error {
	r.users[user.Username] = user
	return nil
}

func (r *memoryUserRepo) UpdatePassword(username, hashedPassword string) error {
	user, ok := r.users[username]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	user.Password = hashedPassword
	return nil
}

func validRegisterInput() RegisterInput {
	return RegisterInput{
		Username:        "ramesh",
		Password:        "secret123",
		ConfirmPassword: "secret123",
		Name:            "Ramesh Kumar",
		Email:           "ramesh@example.com",
		Phone:           "+919876543210",
		Address:         "Village Rampur, UP",
		DOB:             "1985-06-12",
	}
}

func newTestUserService(repo *memoryUserRepo) UserService {
	jwtManager := token.NewJWTManager("test-secret", 1, 1)
	return NewUserService(repo, jwtManager, nil)
}

func TestRegisterAndLogin(t *testing.T) {
	repo := newMemoryUserRepo()
	svc := newTestUserService(repo)

	user, err := svc.Register(validRegisterInput())
	require.NoError(t, err)
	assert.Equal(t, "ramesh", user.Username)
	// 密码以 bcrypt 哈希存储，绝不存明文
	assert.NotEqual(t, "secret123", user.Password)
	assert.True(t, hash.CheckPasswordHash("secret123", user.Password))

	// 用户名登录
	access, refresh, err := svc.Login("ramesh", "secret123")
	require.NoError(t, err)
	assert.NotEmpty(t, access)
	assert.NotEmpty(t, refresh)

	// 邮箱登录
	_, _, err = svc.Login("ramesh@example.com", "secret123")
	assert.NoError(t, err)
}

func TestRegisterValidation(t *testing.T) {
	repo := newMemoryUserRepo()
	svc := newTestUserService(repo)

	mismatch := validRegisterInput()
	mismatch.ConfirmPassword = "other"
	_, err := svc.Register(mismatch)
	assert.Error(t, err)

	badEmail := validRegisterInput()
	badEmail.Email = "not-an-email"
	_, err = svc.Register(badEmail)
	assert.Error(t, err)

	badPhone := validRegisterInput()
	badPhone.Phone = "12345"
	_, err = svc.Register(badPhone)
	assert.Error(t, err)

	// 校验失败不应写入任何用户
	assert.Empty(t, repo.users)
}

func TestRegisterDuplicateUsername(t *testing.T) {
	repo := newMemoryUserRepo()
	svc := newTestUserService(repo)

	_, err := svc.Register(validRegisterInput())
	require.NoError(t, err)

	_, err = svc.Register(validRegisterInput())
	assert.Error(t, err)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	repo := newMemoryUserRepo()
	svc := newTestUserService(repo)

	_, err := svc.Register(validRegisterInput())
	require.NoError(t, err)

	_, _, err = svc.Login("ramesh", "wrong")
	assert.EqualError(t, err, "invalid credentials")

	// 不存在的用户返回同样的错误，不泄露用户是否存在
	_, _, err = svc.Login("nobody", "whatever")
	assert.EqualError(t, err, "invalid credentials")
}

func TestUpdateProfileValidatesFields(t *testing.T) {
	repo := newMemoryUserRepo()
	svc := newTestUserService(repo)

	_, err := svc.Register(validRegisterInput())
	require.NoError(t, err)

	updated, err := svc.UpdateProfile("ramesh", "New Name", "", "", "New Address", "")
	require.NoError(t, err)
	assert.Equal(t, "New Name", updated.Name)
	assert.Equal(t, "New Address", updated.Address)
	// 未提交的字段保持原值
	assert.Equal(t, "ramesh@example.com", updated.Email)

	_, err = svc.UpdateProfile("ramesh", "", "bad-email", "", "", "")
	assert.Error(t, err)
}

func TestRefreshTokenIssuesNewPair(t *testing.T) {
	repo := newMemoryUserRepo()
	svc := newTestUserService(repo)

	_, err := svc.Register(validRegisterInput())
	require.NoError(t, err)

	_, refresh, err := svc.Login("ramesh", "secret123")
	require.NoError(t, err)

	newAccess, newRefresh, err := svc.RefreshToken(refresh)
	require.NoError(t, err)
	assert.NotEmpty(t, newAccess)
	assert.NotEmpty(t, newRefresh)

	_, _, err = svc.RefreshToken("garbage-token")
	assert.Error(t, err)
}
