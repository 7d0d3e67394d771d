package services

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Gopher0727/CampusLink/config"
	"github.com/Gopher0727/CampusLink/internal/errs"
	"github.com/Gopher0727/CampusLink/internal/models"
	"github.com/Gopher0727/CampusLink/internal/repositories"
	"github.com/Gopher0727/CampusLink/internal/storage"
	logger "github.com/Gopher0727/CampusLink/middleware/log"
)

// setupTestDB 连接本地测试库，不可用时跳过
// 每次调用都清空全部表，测试之间互不干扰
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := os.Getenv("CAMPUSLINK_TEST_DSN")
	if dsn == "" {
		dsn = "host=localhost port=5432 user=postgres password=postgres dbname=campuslink_test sslmode=disable"
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Skipf("Skipping test: Postgres not available: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Skipf("Skipping test: Postgres not available: %v", err)
	}
	if err := sqlDB.Ping(); err != nil {
		t.Skipf("Skipping test: Postgres not available: %v", err)
	}

	require.NoError(t, storage.Migrate(db))

	tables := []string{
		"notifications", "group_messages", "event_organizers", "event_admins",
		"events", "body_members", "bodies", "group_members", "groups",
		"messages", "blocked_users", "connections", "users",
	}
	for _, table := range tables {
		require.NoError(t, db.Exec("TRUNCATE TABLE "+table+" RESTART IDENTITY CASCADE").Error)
	}
	return db
}

// captureFanout 记录所有提交后发布的事件
type captureFanout struct {
	mu     sync.Mutex
	events []*NotificationEvent
}

func (f *captureFanout) Publish(ctx context.Context, event *NotificationEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *captureFanout) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	kinds := make([]string, 0, len(f.events))
	for _, e := range f.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func (f *captureFanout) ofKind(kind string) []*NotificationEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []*NotificationEvent
	for _, e := range f.events {
		if e.Kind == kind {
			matched = append(matched, e)
		}
	}
	return matched
}

func (f *captureFanout) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = nil
}

// testLimits 收紧各项上限，让限流和配额分支容易触发
func testLimits() config.LimitsConfig {
	return config.LimitsConfig{
		ConnectionWindowHours: 1,
		ConnectionMax:         3,
		ConversationWindow:    1,
		ConversationMax:       2,
		GroupMaxMembers:       4,
		GroupMinMembers:       2,
		EventMaxMembers:       500,
		UserEventQuota:        2,
		CancelledChatGraceHrs: 24,
	}
}

type testEnv struct {
	db            *gorm.DB
	fanout        *captureFanout
	limits        config.LimitsConfig
	relationships *RelationshipService
	messages      *MessageService
	groups        *GroupService
	events        *EventService
	bodies        *BodyService
	notifications *NotificationService
	notifRepo     *repositories.NotificationRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := setupTestDB(t)
	mr := miniredis.RunT(t)
	redisClient := storage.NewRedisClientFrom(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	userRepo := repositories.NewUserRepository(db)
	connRepo := repositories.NewConnectionRepository(db)
	blockRepo := repositories.NewBlockRepository(db)
	messageRepo := repositories.NewMessageRepository(db)
	groupRepo := repositories.NewGroupRepository(db)
	bodyRepo := repositories.NewBodyRepository(db)
	eventRepo := repositories.NewEventRepository(db)
	notifRepo := repositories.NewNotificationRepository(db)

	fanout := &captureFanout{}
	log := logger.NewNop()
	limits := testLimits()

	groupService := NewGroupService(db, groupRepo, userRepo, notifRepo, fanout, log, limits)
	return &testEnv{
		db:            db,
		fanout:        fanout,
		limits:        limits,
		relationships: NewRelationshipService(db, connRepo, blockRepo, userRepo, notifRepo, fanout, log, limits),
		messages:      NewMessageService(db, messageRepo, connRepo, blockRepo, notifRepo, fanout, log, limits),
		groups:        groupService,
		events: NewEventService(db, eventRepo, groupRepo, bodyRepo, notifRepo, groupService,
			NewBodyDirectory(bodyRepo), redisClient, fanout, log, limits),
		bodies:        NewBodyService(bodyRepo, userRepo, eventRepo),
		notifications: NewNotificationService(notifRepo),
		notifRepo:     notifRepo,
	}
}

func createUser(t *testing.T, db *gorm.DB, name string) *models.User {
	t.Helper()
	user := &models.User{
		UserName:     name,
		Email:        name + "@example.com",
		PasswordHash: "not-a-real-hash",
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// notificationKinds 用户收到的通知类型列表（按写入顺序）
func notificationKinds(t *testing.T, db *gorm.DB, userID uint) []string {
	t.Helper()
	var kinds []string
	require.NoError(t, db.Model(&models.Notification{}).
		Where("user_id = ?", userID).Order("id").Pluck("kind", &kinds).Error)
	return kinds
}

func TestRequestConnection_Engine(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alice := createUser(t, env.db, "alice")
	bob := createUser(t, env.db, "bob")

	t.Run("creates a pending request and notifies the receiver", func(t *testing.T) {
		dto, err := env.relationships.RequestConnection(ctx, alice.ID, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ConnectionPending, dto.Status)
		assert.Equal(t, alice.ID, dto.RequesterID)
		assert.Equal(t, bob.ID, dto.ReceiverID)

		assert.Contains(t, notificationKinds(t, env.db, bob.ID), NotifyConnectionRequested)
		assert.Contains(t, env.fanout.kinds(), NotifyConnectionRequested)
	})

	t.Run("rejects self connection", func(t *testing.T) {
		_, err := env.relationships.RequestConnection(ctx, alice.ID, alice.ID)
		assert.ErrorIs(t, err, errs.KindValidation)
	})

	t.Run("rejects unknown receiver", func(t *testing.T) {
		_, err := env.relationships.RequestConnection(ctx, alice.ID, 99999)
		assert.ErrorIs(t, err, errs.KindNotFound)
	})

	t.Run("duplicate pair conflicts in either direction", func(t *testing.T) {
		_, err := env.relationships.RequestConnection(ctx, alice.ID, bob.ID)
		assert.ErrorIs(t, err, errs.KindConflict)

		// 反向重复同样撞规范化对
		_, err = env.relationships.RequestConnection(ctx, bob.ID, alice.ID)
		assert.ErrorIs(t, err, errs.KindConflict)
	})

	t.Run("block vetoes new requests", func(t *testing.T) {
		carol := createUser(t, env.db, "carol")
		require.NoError(t, env.relationships.Block(ctx, carol.ID, alice.ID))

		_, err := env.relationships.RequestConnection(ctx, alice.ID, carol.ID)
		assert.ErrorIs(t, err, errs.KindForbidden)

		require.NoError(t, env.relationships.Unblock(ctx, carol.ID, alice.ID))
		_, err = env.relationships.RequestConnection(ctx, alice.ID, carol.ID)
		assert.NoError(t, err)
	})

	t.Run("rate limits the requester inside the window", func(t *testing.T) {
		sender := createUser(t, env.db, "spammer")
		for i := 0; i < env.limits.ConnectionMax; i++ {
			target := createUser(t, env.db, fmt.Sprintf("target%d", i))
			_, err := env.relationships.RequestConnection(ctx, sender.ID, target.ID)
			require.NoError(t, err)
		}

		extra := createUser(t, env.db, "target-extra")
		_, err := env.relationships.RequestConnection(ctx, sender.ID, extra.ID)
		assert.ErrorIs(t, err, errs.KindRateLimited)
	})
}

func TestRespondToConnection_Engine(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alice := createUser(t, env.db, "alice")
	bob := createUser(t, env.db, "bob")

	conn, err := env.relationships.RequestConnection(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	t.Run("rejects invalid status", func(t *testing.T) {
		_, err := env.relationships.RespondToConnection(ctx, conn.ID, bob.ID, "maybe")
		assert.ErrorIs(t, err, errs.KindValidation)
	})

	t.Run("requester cannot respond to own request", func(t *testing.T) {
		// 故意和"不存在"同一个答案，不泄露请求归属
		_, err := env.relationships.RespondToConnection(ctx, conn.ID, alice.ID, models.ConnectionAccepted)
		assert.ErrorIs(t, err, errs.KindNotFound)
	})

	t.Run("unknown connection id", func(t *testing.T) {
		_, err := env.relationships.RespondToConnection(ctx, 99999, bob.ID, models.ConnectionAccepted)
		assert.ErrorIs(t, err, errs.KindNotFound)
	})

	t.Run("receiver accepts and requester is notified", func(t *testing.T) {
		dto, err := env.relationships.RespondToConnection(ctx, conn.ID, bob.ID, models.ConnectionAccepted)
		require.NoError(t, err)
		assert.Equal(t, models.ConnectionAccepted, dto.Status)

		assert.Contains(t, notificationKinds(t, env.db, alice.ID), NotifyConnectionAccepted)
	})

	t.Run("cannot respond twice", func(t *testing.T) {
		_, err := env.relationships.RespondToConnection(ctx, conn.ID, bob.ID, models.ConnectionRejected)
		assert.ErrorIs(t, err, errs.KindNotFound)
	})

	t.Run("rejection does not notify", func(t *testing.T) {
		carol := createUser(t, env.db, "carol")
		dave := createUser(t, env.db, "dave")
		c2, err := env.relationships.RequestConnection(ctx, carol.ID, dave.ID)
		require.NoError(t, err)

		dto, err := env.relationships.RespondToConnection(ctx, c2.ID, dave.ID, models.ConnectionRejected)
		require.NoError(t, err)
		assert.Equal(t, models.ConnectionRejected, dto.Status)
		assert.NotContains(t, notificationKinds(t, env.db, carol.ID), NotifyConnectionAccepted)
	})
}

// acceptConnection 建立一条已接受的连接，私信测试的前置
func acceptConnection(t *testing.T, env *testEnv, a, b uint) {
	t.Helper()
	ctx := context.Background()
	conn, err := env.relationships.RequestConnection(ctx, a, b)
	require.NoError(t, err)
	_, err = env.relationships.RespondToConnection(ctx, conn.ID, b, models.ConnectionAccepted)
	require.NoError(t, err)
}

func TestSendMessage_Engine(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alice := createUser(t, env.db, "alice")
	bob := createUser(t, env.db, "bob")

	t.Run("requires an accepted connection", func(t *testing.T) {
		_, err := env.messages.Send(ctx, alice.ID, bob.ID, "hi", "")
		assert.ErrorIs(t, err, errs.KindForbidden)
	})

	t.Run("pending connection is not enough", func(t *testing.T) {
		conn, err := env.relationships.RequestConnection(ctx, alice.ID, bob.ID)
		require.NoError(t, err)

		_, err = env.messages.Send(ctx, alice.ID, bob.ID, "hi", "")
		assert.ErrorIs(t, err, errs.KindForbidden)

		_, err = env.relationships.RespondToConnection(ctx, conn.ID, bob.ID, models.ConnectionAccepted)
		require.NoError(t, err)
	})

	t.Run("delivers and notifies the receiver", func(t *testing.T) {
		env.fanout.reset()
		dto, err := env.messages.Send(ctx, alice.ID, bob.ID, "hello bob", "")
		require.NoError(t, err)
		assert.Equal(t, "hello bob", dto.Content)
		assert.Nil(t, dto.ReadAt)

		assert.Contains(t, notificationKinds(t, env.db, bob.ID), NotifyMessageReceived)
		assert.Contains(t, env.fanout.kinds(), NotifyMessageReceived)
	})

	t.Run("rejects empty and oversized content", func(t *testing.T) {
		_, err := env.messages.Send(ctx, alice.ID, bob.ID, "", "")
		assert.ErrorIs(t, err, errs.KindValidation)

		big := make([]byte, 5001)
		for i := range big {
			big[i] = 'x'
		}
		_, err = env.messages.Send(ctx, alice.ID, bob.ID, string(big), "")
		assert.ErrorIs(t, err, errs.KindValidation)
	})

	t.Run("block vetoes messaging even with a connection", func(t *testing.T) {
		require.NoError(t, env.relationships.Block(ctx, bob.ID, alice.ID))
		_, err := env.messages.Send(ctx, alice.ID, bob.ID, "still there?", "")
		assert.ErrorIs(t, err, errs.KindForbidden)
		require.NoError(t, env.relationships.Unblock(ctx, bob.ID, alice.ID))
	})

	t.Run("conversation start limit counts only new peers", func(t *testing.T) {
		sender := createUser(t, env.db, "chatty")
		peers := make([]*models.User, 0, env.limits.ConversationMax+1)
		for i := 0; i < env.limits.ConversationMax+1; i++ {
			peer := createUser(t, env.db, fmt.Sprintf("peer%d", i))
			acceptConnection(t, env, sender.ID, peer.ID)
			peers = append(peers, peer)
		}

		for i := 0; i < env.limits.ConversationMax; i++ {
			_, err := env.messages.Send(ctx, sender.ID, peers[i].ID, "first", "")
			require.NoError(t, err)
		}

		// 新会话超限
		_, err := env.messages.Send(ctx, sender.ID, peers[env.limits.ConversationMax].ID, "one too many", "")
		assert.ErrorIs(t, err, errs.KindRateLimited)

		// 已有会话里继续聊不受限
		_, err = env.messages.Send(ctx, sender.ID, peers[0].ID, "second", "")
		assert.NoError(t, err)

		// 对方先开的口也算历史消息，回复不是新会话
		blocked := peers[env.limits.ConversationMax]
		_, err = env.messages.Send(ctx, blocked.ID, sender.ID, "hey", "")
		require.NoError(t, err)
		_, err = env.messages.Send(ctx, sender.ID, blocked.ID, "reply", "")
		assert.NoError(t, err)
	})
}

func TestMarkRead_Engine(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alice := createUser(t, env.db, "alice")
	bob := createUser(t, env.db, "bob")
	acceptConnection(t, env, alice.ID, bob.ID)

	m1, err := env.messages.Send(ctx, bob.ID, alice.ID, "one", "")
	require.NoError(t, err)
	m2, err := env.messages.Send(ctx, bob.ID, alice.ID, "two", "")
	require.NoError(t, err)

	count, err := env.messages.GetUnreadCount(alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	t.Run("reports each unread id exactly once", func(t *testing.T) {
		ids, err := env.messages.MarkRead(ctx, alice.ID, bob.ID)
		require.NoError(t, err)
		assert.ElementsMatch(t, []int64{m1.ID, m2.ID}, ids)

		assert.Contains(t, notificationKinds(t, env.db, bob.ID), NotifyMessageRead)

		count, err := env.messages.GetUnreadCount(alice.ID, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), count)
	})

	t.Run("second pass reports nothing", func(t *testing.T) {
		ids, err := env.messages.MarkRead(ctx, alice.ID, bob.ID)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("new message becomes unread again", func(t *testing.T) {
		m3, err := env.messages.Send(ctx, bob.ID, alice.ID, "three", "")
		require.NoError(t, err)

		ids, err := env.messages.MarkRead(ctx, alice.ID, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, []int64{m3.ID}, ids)
	})
}

func TestCreateGroup_Engine(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	owner := createUser(t, env.db, "owner")

	t.Run("creator becomes owner and initial members join", func(t *testing.T) {
		a := createUser(t, env.db, "member-a")
		b := createUser(t, env.db, "member-b")

		dto, err := env.groups.CreateGroup(ctx, owner.ID, &CreateGroupRequest{
			Name:             "study group",
			InitialMemberIDs: []uint{a.ID, b.ID, a.ID, owner.ID}, // 重复和创建者都被去掉
		})
		require.NoError(t, err)
		assert.Equal(t, int64(3), dto.MemberCount)
		assert.Equal(t, models.GroupTypeRegular, dto.Type)

		members, total, err := env.groups.GetGroupMembers(dto.ID, 1, 20)
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)

		roles := map[uint]string{}
		for _, m := range members {
			roles[m.UserID] = m.Role
		}
		assert.Equal(t, models.MemberRoleOwner, roles[owner.ID])
		assert.Equal(t, models.MemberRoleMember, roles[a.ID])
	})

	t.Run("over capacity fails atomically", func(t *testing.T) {
		ids := make([]uint, 0, env.limits.GroupMaxMembers)
		for i := 0; i < env.limits.GroupMaxMembers; i++ {
			ids = append(ids, createUser(t, env.db, fmt.Sprintf("filler%d", i)).ID)
		}

		var before int64
		require.NoError(t, env.db.Model(&models.Group{}).Count(&before).Error)

		_, err := env.groups.CreateGroup(ctx, owner.ID, &CreateGroupRequest{
			Name:             "too big",
			InitialMemberIDs: ids,
		})
		assert.ErrorIs(t, err, errs.KindCapacityExceeded)

		// 没有半成品留下
		var after int64
		require.NoError(t, env.db.Model(&models.Group{}).Count(&after).Error)
		assert.Equal(t, before, after)
	})

	t.Run("unknown initial member", func(t *testing.T) {
		_, err := env.groups.CreateGroup(ctx, owner.ID, &CreateGroupRequest{
			Name:             "ghost group",
			InitialMemberIDs: []uint{99999},
		})
		assert.ErrorIs(t, err, errs.KindNotFound)
	})
}

func TestGroupMembership_Engine(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	owner := createUser(t, env.db, "owner")
	first := createUser(t, env.db, "first")

	group, err := env.groups.CreateGroup(ctx, owner.ID, &CreateGroupRequest{
		Name:             "club",
		InitialMemberIDs: []uint{first.ID},
	})
	require.NoError(t, err)

	t.Run("only owner or admin can add members", func(t *testing.T) {
		target := createUser(t, env.db, "target")
		err := env.groups.AddMember(ctx, first.ID, group.ID, target.ID)
		assert.ErrorIs(t, err, errs.KindForbidden)

		require.NoError(t, env.groups.AddMember(ctx, owner.ID, group.ID, target.ID))
		assert.Contains(t, notificationKinds(t, env.db, target.ID), NotifyGroupMemberAdded)
	})

	t.Run("adding an active member conflicts", func(t *testing.T) {
		err := env.groups.AddMember(ctx, owner.ID, group.ID, first.ID)
		assert.ErrorIs(t, err, errs.KindConflict)
	})

	t.Run("full group rejects the next member", func(t *testing.T) {
		// GroupMaxMembers=4，现在是 owner+first+target 三人，再加一个满员
		last := createUser(t, env.db, "last")
		require.NoError(t, env.groups.AddMember(ctx, owner.ID, group.ID, last.ID))

		overflow := createUser(t, env.db, "overflow")
		err := env.groups.AddMember(ctx, owner.ID, group.ID, overflow.ID)
		assert.ErrorIs(t, err, errs.KindCapacityExceeded)
	})

	t.Run("members can leave down to the floor", func(t *testing.T) {
		// 四人群：连退两个到下限，第三个退不掉
		require.NoError(t, env.groups.LeaveGroup(ctx, first.ID, group.ID))

		members, _, err := env.groups.GetGroupMembers(group.ID, 1, 20)
		require.NoError(t, err)
		assert.Len(t, members, 3)

		var third uint
		for _, m := range members {
			if m.Role != models.MemberRoleOwner {
				third = m.UserID
				break
			}
		}
		require.NoError(t, env.groups.LeaveGroup(ctx, third, group.ID))

		for _, m := range members {
			if m.Role != models.MemberRoleOwner && m.UserID != third {
				err = env.groups.LeaveGroup(ctx, m.UserID, group.ID)
				assert.ErrorIs(t, err, errs.KindInvalidState)
			}
		}
	})

	t.Run("owner cannot leave", func(t *testing.T) {
		err := env.groups.LeaveGroup(ctx, owner.ID, group.ID)
		assert.ErrorIs(t, err, errs.KindInvalidState)
	})

	t.Run("rejoin reuses the old row as plain member", func(t *testing.T) {
		require.NoError(t, env.groups.AddMember(ctx, owner.ID, group.ID, first.ID))

		var rows int64
		require.NoError(t, env.db.Model(&models.GroupMember{}).
			Where("group_id = ? AND user_id = ?", group.ID, first.ID).Count(&rows).Error)
		assert.Equal(t, int64(1), rows)

		var member models.GroupMember
		require.NoError(t, env.db.Where("group_id = ? AND user_id = ?", group.ID, first.ID).
			First(&member).Error)
		assert.Equal(t, models.MemberStatusActive, member.Status)
		assert.Equal(t, models.MemberRoleMember, member.Role)
	})
}

func TestGroupCapacityRace_Engine(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	owner := createUser(t, env.db, "race_owner")
	second := createUser(t, env.db, "race_second")
	third := createUser(t, env.db, "race_third")

	// GroupMaxMembers=4：owner 加两名初始成员，只剩一个名额
	group, err := env.groups.CreateGroup(ctx, owner.ID, &CreateGroupRequest{
		Name:             "race",
		InitialMemberIDs: []uint{second.ID, third.ID},
	})
	require.NoError(t, err)

	// 两个并发的 addMember 跑在各自的事务里，行锁让它们串行化
	addBoth := func(a, b uint) []error {
		results := make([]error, 2)
		var wg sync.WaitGroup
		for i, target := range []uint{a, b} {
			wg.Add(1)
			go func(i int, target uint) {
				defer wg.Done()
				results[i] = env.groups.AddMember(ctx, owner.ID, group.ID, target)
			}(i, target)
		}
		wg.Wait()
		return results
	}

	t.Run("one free seat admits exactly one of two rivals", func(t *testing.T) {
		rivalA := createUser(t, env.db, "rival_a")
		rivalB := createUser(t, env.db, "rival_b")

		successes := 0
		for _, err := range addBoth(rivalA.ID, rivalB.ID) {
			if err == nil {
				successes++
			} else {
				assert.ErrorIs(t, err, errs.KindCapacityExceeded)
			}
		}
		assert.Equal(t, 1, successes)

		var active int64
		require.NoError(t, env.db.Model(&models.GroupMember{}).
			Where("group_id = ? AND status = ?", group.ID, models.MemberStatusActive).
			Count(&active).Error)
		assert.Equal(t, int64(env.limits.GroupMaxMembers), active)
	})

	t.Run("full group rejects both rivals", func(t *testing.T) {
		lateA := createUser(t, env.db, "late_a")
		lateB := createUser(t, env.db, "late_b")

		for _, err := range addBoth(lateA.ID, lateB.ID) {
			assert.ErrorIs(t, err, errs.KindCapacityExceeded)
		}
	})
}

// setupBody 建组织：manager 创建，其余用户作为普通成员加入
func setupBody(t *testing.T, env *testEnv, manager uint, members ...uint) *BodyDTO {
	t.Helper()
	body, err := env.bodies.CreateBody(manager, &CreateBodyRequest{Name: fmt.Sprintf("body-%d", manager)})
	require.NoError(t, err)
	for _, id := range members {
		require.NoError(t, env.bodies.Join(id, body.ID))
	}
	return body
}

func draftEvent(t *testing.T, env *testEnv, creator, bodyID uint, capacity *int) *EventDTO {
	t.Helper()
	now := time.Now()
	event, err := env.events.CreateEvent(context.Background(), creator, &CreateEventRequest{
		BodyID:    bodyID,
		Title:     "orientation",
		Capacity:  capacity,
		StartTime: now.Add(24 * time.Hour),
		EndTime:   now.Add(26 * time.Hour),
	})
	require.NoError(t, err)
	return event
}

func TestEventLifecycle_Engine(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	manager := createUser(t, env.db, "manager")
	member := createUser(t, env.db, "member")
	outsider := createUser(t, env.db, "outsider")
	body := setupBody(t, env, manager.ID, member.ID)

	t.Run("only body managers can create events", func(t *testing.T) {
		now := time.Now()
		req := &CreateEventRequest{
			BodyID:    body.ID,
			Title:     "unauthorized",
			StartTime: now.Add(time.Hour),
			EndTime:   now.Add(2 * time.Hour),
		}
		_, err := env.events.CreateEvent(ctx, member.ID, req)
		assert.ErrorIs(t, err, errs.KindForbidden)

		_, err = env.events.CreateEvent(ctx, outsider.ID, req)
		assert.ErrorIs(t, err, errs.KindForbidden)
	})

	t.Run("create builds the event group atomically", func(t *testing.T) {
		event := draftEvent(t, env, manager.ID, body.ID, nil)
		assert.Equal(t, models.EventDraft, event.Status)
		require.NotZero(t, event.GroupID)

		var group models.Group
		require.NoError(t, env.db.First(&group, event.GroupID).Error)
		assert.Equal(t, models.GroupTypeEvent, group.Type)
		assert.Equal(t, env.limits.EventMaxMembers, group.MaxMembers)

		members, total, err := env.groups.GetGroupMembers(event.GroupID, 1, 20)
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		assert.Equal(t, models.MemberRoleOwner, members[0].Role)
	})

	event := draftEvent(t, env, manager.ID, body.ID, nil)

	t.Run("draft event is not open for joining", func(t *testing.T) {
		err := env.events.Join(ctx, member.ID, event.ID)
		assert.ErrorIs(t, err, errs.KindInvalidState)
	})

	t.Run("only admins can publish", func(t *testing.T) {
		_, err := env.events.Publish(ctx, member.ID, event.ID)
		assert.ErrorIs(t, err, errs.KindForbidden)

		env.fanout.reset()
		dto, err := env.events.Publish(ctx, manager.ID, event.ID)
		require.NoError(t, err)
		assert.Equal(t, models.EventPublished, dto.Status)
		assert.Contains(t, env.fanout.kinds(), NotifyEventPublished)
		assert.Contains(t, notificationKinds(t, env.db, manager.ID), NotifyEventPublished)
	})

	t.Run("publish is not repeatable", func(t *testing.T) {
		_, err := env.events.Publish(ctx, manager.ID, event.ID)
		assert.ErrorIs(t, err, errs.KindInvalidState)
	})

	t.Run("published event accepts members once", func(t *testing.T) {
		require.NoError(t, env.events.Join(ctx, member.ID, event.ID))
		err := env.events.Join(ctx, member.ID, event.ID)
		assert.ErrorIs(t, err, errs.KindConflict)
	})

	t.Run("capacity cannot fall below member count", func(t *testing.T) {
		one := 1
		_, err := env.events.Update(ctx, manager.ID, event.ID, &UpdateEventRequest{Capacity: &one})
		assert.ErrorIs(t, err, errs.KindInvalidState)

		ten := 10
		dto, err := env.events.Update(ctx, manager.ID, event.ID, &UpdateEventRequest{Capacity: &ten})
		require.NoError(t, err)
		require.NotNil(t, dto.Capacity)
		assert.Equal(t, 10, *dto.Capacity)

		var group models.Group
		require.NoError(t, env.db.First(&group, event.GroupID).Error)
		assert.Equal(t, 10, group.MaxMembers)
	})

	t.Run("members can leave but the owner cannot", func(t *testing.T) {
		require.NoError(t, env.events.Leave(ctx, member.ID, event.ID))
		err := env.events.Leave(ctx, manager.ID, event.ID)
		assert.ErrorIs(t, err, errs.KindInvalidState)
		require.NoError(t, env.events.Join(ctx, member.ID, event.ID))
	})

	t.Run("cancel records the timestamp and notifies members", func(t *testing.T) {
		env.fanout.reset()
		dto, err := env.events.Cancel(ctx, manager.ID, event.ID)
		require.NoError(t, err)
		assert.Equal(t, models.EventCancelled, dto.Status)
		require.NotNil(t, dto.CancelledAt)

		assert.Contains(t, env.fanout.kinds(), NotifyEventCancelled)
		assert.Contains(t, notificationKinds(t, env.db, member.ID), NotifyEventCancelled)
	})

	t.Run("cancelled event cannot be edited or rejoined", func(t *testing.T) {
		title := "renamed"
		_, err := env.events.Update(ctx, manager.ID, event.ID, &UpdateEventRequest{Title: &title})
		assert.ErrorIs(t, err, errs.KindInvalidState)

		err = env.events.Join(ctx, outsider.ID, event.ID)
		assert.ErrorIs(t, err, errs.KindInvalidState)
	})
}

func TestEventCapacityAndQuota_Engine(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	manager := createUser(t, env.db, "manager")
	joiner := createUser(t, env.db, "joiner")
	body := setupBody(t, env, manager.ID, joiner.ID)

	t.Run("full event rejects joins", func(t *testing.T) {
		// capacity=1 时 owner 已占掉唯一名额
		one := 1
		event := draftEvent(t, env, manager.ID, body.ID, &one)
		_, err := env.events.Publish(ctx, manager.ID, event.ID)
		require.NoError(t, err)

		err = env.events.Join(ctx, joiner.ID, event.ID)
		assert.ErrorIs(t, err, errs.KindCapacityExceeded)
	})

	t.Run("per-user quota spans events", func(t *testing.T) {
		events := make([]*EventDTO, 0, env.limits.UserEventQuota+1)
		for i := 0; i < env.limits.UserEventQuota+1; i++ {
			event := draftEvent(t, env, manager.ID, body.ID, nil)
			_, err := env.events.Publish(ctx, manager.ID, event.ID)
			require.NoError(t, err)
			events = append(events, event)
		}

		for i := 0; i < env.limits.UserEventQuota; i++ {
			require.NoError(t, env.events.Join(ctx, joiner.ID, events[i].ID))
		}

		err := env.events.Join(ctx, joiner.ID, events[env.limits.UserEventQuota].ID)
		assert.ErrorIs(t, err, errs.KindQuotaExceeded)

		// 退出一个活动后配额释放
		require.NoError(t, env.events.Leave(ctx, joiner.ID, events[0].ID))
		assert.NoError(t, env.events.Join(ctx, joiner.ID, events[env.limits.UserEventQuota].ID))
	})
}

func TestEventJoinRace_Engine(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	manager := createUser(t, env.db, "race_manager")
	body := setupBody(t, env, manager.ID)

	// capacity=2：owner 已占一个名额，剩最后一个
	two := 2
	event := draftEvent(t, env, manager.ID, body.ID, &two)
	_, err := env.events.Publish(ctx, manager.ID, event.ID)
	require.NoError(t, err)

	rivalA := createUser(t, env.db, "join_rival_a")
	rivalB := createUser(t, env.db, "join_rival_b")

	results := make([]error, 2)
	var wg sync.WaitGroup
	for i, target := range []uint{rivalA.ID, rivalB.ID} {
		wg.Add(1)
		go func(i int, userID uint) {
			defer wg.Done()
			results[i] = env.events.Join(ctx, userID, event.ID)
		}(i, target)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, errs.KindCapacityExceeded)
		}
	}
	assert.Equal(t, 1, successes)
}

func TestEventGroupChat_Engine(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	manager := createUser(t, env.db, "manager")
	member := createUser(t, env.db, "member")
	stranger := createUser(t, env.db, "stranger")
	body := setupBody(t, env, manager.ID, member.ID)

	event := draftEvent(t, env, manager.ID, body.ID, nil)

	t.Run("chat is open in draft for active members", func(t *testing.T) {
		dto, err := env.events.SendGroupMessage(ctx, manager.ID, event.ID, "welcome", "")
		require.NoError(t, err)
		assert.Equal(t, int64(1), dto.SequenceID)
		assert.True(t, dto.IsOrganizer)
		assert.Equal(t, "text", dto.MsgType)
	})

	t.Run("non-members cannot chat", func(t *testing.T) {
		_, err := env.events.SendGroupMessage(ctx, stranger.ID, event.ID, "hello?", "")
		assert.ErrorIs(t, err, errs.KindForbidden)
	})

	t.Run("sequence ids are monotonic per group", func(t *testing.T) {
		_, err := env.events.Publish(ctx, manager.ID, event.ID)
		require.NoError(t, err)
		require.NoError(t, env.events.Join(ctx, member.ID, event.ID))

		m2, err := env.events.SendGroupMessage(ctx, member.ID, event.ID, "hi all", "")
		require.NoError(t, err)
		assert.Equal(t, int64(2), m2.SequenceID)
		assert.False(t, m2.IsOrganizer)

		m3, err := env.events.SendGroupMessage(ctx, manager.ID, event.ID, "agenda", "")
		require.NoError(t, err)
		assert.Equal(t, int64(3), m3.SequenceID)
	})

	t.Run("chat pushes to the other members, not the sender", func(t *testing.T) {
		env.fanout.reset()
		_, err := env.events.SendGroupMessage(ctx, member.ID, event.ID, "ping", "")
		require.NoError(t, err)

		pushed := env.fanout.ofKind(NotifyGroupMessage)
		require.Len(t, pushed, 1)
		assert.Equal(t, []uint{manager.ID}, pushed[0].TargetUserIDs)
	})

	t.Run("organizer flag covers the organizer set too", func(t *testing.T) {
		require.NoError(t, env.events.AddEventOrganizer(ctx, manager.ID, event.ID, member.ID))
		dto, err := env.events.SendGroupMessage(ctx, member.ID, event.ID, "as organizer", "")
		require.NoError(t, err)
		assert.True(t, dto.IsOrganizer)
	})

	t.Run("chat survives cancellation inside the grace window", func(t *testing.T) {
		_, err := env.events.Cancel(ctx, manager.ID, event.ID)
		require.NoError(t, err)

		_, err = env.events.SendGroupMessage(ctx, member.ID, event.ID, "what happened?", "")
		assert.NoError(t, err)
	})

	t.Run("chat closes after the grace window", func(t *testing.T) {
		expired := time.Now().Add(-env.limits.CancelledChatGrace() - time.Hour)
		require.NoError(t, env.db.Model(&models.Event{}).
			Where("id = ?", event.ID).Update("cancelled_at", expired).Error)

		_, err := env.events.SendGroupMessage(ctx, member.ID, event.ID, "too late", "")
		assert.ErrorIs(t, err, errs.KindForbidden)
	})

	t.Run("history pages for members only", func(t *testing.T) {
		msgs, total, err := env.events.GetGroupMessages(member.ID, event.ID, 1, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(6), total)
		assert.Len(t, msgs, 2)

		_, _, err = env.events.GetGroupMessages(stranger.ID, event.ID, 1, 10)
		assert.ErrorIs(t, err, errs.KindForbidden)
	})
}

func TestEventAdmins_Engine(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	manager := createUser(t, env.db, "manager")
	member := createUser(t, env.db, "member")
	outsider := createUser(t, env.db, "outsider")
	body := setupBody(t, env, manager.ID, member.ID)

	event := draftEvent(t, env, manager.ID, body.ID, nil)

	t.Run("admin must come from the body", func(t *testing.T) {
		err := env.events.AddEventAdmin(ctx, manager.ID, event.ID, outsider.ID)
		assert.ErrorIs(t, err, errs.KindForbidden)
	})

	t.Run("non-admins cannot grant roles", func(t *testing.T) {
		err := env.events.AddEventAdmin(ctx, member.ID, event.ID, member.ID)
		assert.ErrorIs(t, err, errs.KindForbidden)
	})

	t.Run("granted admin can run the lifecycle", func(t *testing.T) {
		require.NoError(t, env.events.AddEventAdmin(ctx, manager.ID, event.ID, member.ID))
		// 重复授予是幂等的
		require.NoError(t, env.events.AddEventAdmin(ctx, manager.ID, event.ID, member.ID))

		dto, err := env.events.Publish(ctx, member.ID, event.ID)
		require.NoError(t, err)
		assert.Equal(t, models.EventPublished, dto.Status)
	})
}

func TestNotificationFeed_Engine(t *testing.T) {
	env := newTestEnv(t)

	alice := createUser(t, env.db, "alice")
	bob := createUser(t, env.db, "bob")
	acceptConnection(t, env, alice.ID, bob.ID)

	// alice 有一条 connection.accepted，bob 有一条 connection.requested
	t.Run("lists persisted notifications", func(t *testing.T) {
		feed, total, err := env.notifications.List(alice.ID, 1, 20)
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, feed, 1)
		assert.Equal(t, NotifyConnectionAccepted, feed[0].Kind)
		assert.Nil(t, feed[0].SeenAt)
	})

	t.Run("mark seen is scoped to the owner", func(t *testing.T) {
		feed, _, err := env.notifications.List(bob.ID, 1, 20)
		require.NoError(t, err)
		require.Len(t, feed, 1)

		// alice 标不了 bob 的通知
		require.NoError(t, env.notifications.MarkSeen(alice.ID, []int64{feed[0].ID}))
		feed, _, err = env.notifications.List(bob.ID, 1, 20)
		require.NoError(t, err)
		assert.Nil(t, feed[0].SeenAt)

		require.NoError(t, env.notifications.MarkSeen(bob.ID, []int64{feed[0].ID}))
		feed, _, err = env.notifications.List(bob.ID, 1, 20)
		require.NoError(t, err)
		assert.NotNil(t, feed[0].SeenAt)
	})
}
