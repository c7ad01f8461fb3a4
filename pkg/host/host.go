// Package host 宿主进程抽象：世界/玩家/登录事件查询与按 tick 计时的任务调度
package host

import "errors"

// ErrClosed 宿主已关闭，拒绝调度
var ErrClosed = errors.New("host: scheduler closed")

// GameMode 玩家游戏模式
type GameMode int

const (
	Survival GameMode = iota
	Creative
	Adventure
	Spectator
)

var gameModeNames = [...]string{"SURVIVAL", "CREATIVE", "ADVENTURE", "SPECTATOR"}

func (g GameMode) String() string {
	if g < 0 || int(g) >= len(gameModeNames) {
		return "UNKNOWN"
	}
	return gameModeNames[g]
}

// GameModes 全部游戏模式（按声明顺序）
func GameModes() []GameMode {
	return []GameMode{Survival, Creative, Adventure, Spectator}
}

// LoginResult 登录尝试结果
type LoginResult int

const (
	LoginAllowed LoginResult = iota
	LoginKickFull
	LoginKickBanned
	LoginKickWhitelist
	LoginKickOther
)

var loginResultNames = [...]string{"allowed", "kick_full", "kick_banned", "kick_whitelist", "kick_other"}

func (r LoginResult) String() string {
	if r < 0 || int(r) >= len(loginResultNames) {
		return "unknown"
	}
	return loginResultNames[r]
}

// LoginResults 全部登录结果（按声明顺序）
func LoginResults() []LoginResult {
	return []LoginResult{LoginAllowed, LoginKickFull, LoginKickBanned, LoginKickWhitelist, LoginKickOther}
}

// Player 在线玩家
type Player struct {
	Name     string
	World    string
	GameMode GameMode
	Op       bool
}

// World 已加载世界的统计快照
type World struct {
	Name         string
	Entities     int
	LoadedChunks int
	PinnedChunks int
}

// Server 宿主查询接口
type Server interface {
	OnlinePlayers() []Player
	Worlds() []World
	// TPS 1/5/15 分钟 ticks-per-second 平均值
	TPS() [3]float64
	// AverageTickTime 平均每 tick 耗时（毫秒）
	AverageTickTime() float64
	// SubscribeLogins 订阅登录事件，返回取消订阅函数
	SubscribeLogins(fn func(LoginResult)) (unsubscribe func())
}

// Task 已调度的周期任务
type Task interface {
	Cancel()
}

// Scheduler 以 tick 为单位的周期任务调度
type Scheduler interface {
	// RunTaskTimer 在主循环上同步执行
	RunTaskTimer(task func(), delayTicks, periodTicks int) (Task, error)
	// RunTaskTimerAsync 在独立 goroutine 上执行
	RunTaskTimerAsync(task func(), delayTicks, periodTicks int) (Task, error)
}

// Host 模块管理器需要的全部宿主能力
type Host interface {
	Server
	Scheduler
}
