/*
Package testutil 提供 MemFlow 测试的共享工具和辅助函数。

# 概述

testutil 包为整个项目的单元测试提供统一的辅助能力，避免各包重复实现
相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout，自动注册 Cleanup
  - 异步断言: AssertEventuallyTrue，支持超时轮询等待条件满足
  - 时钟控制: ManualClock，让 TTL 与保留期测试不依赖真实时间
  - 错误注入: FlakyStore 包装任意持久化存储，按需注入写入/删除失败
  - 固定评分: StaticScorer 返回预设相关性分数，便于排序断言

# 使用示例

	ctx := testutil.TestContext(t)
	clock := testutil.NewManualClock(time.Now())
	store := testutil.NewFlakyStore(storage.NewMemoryStore(nil))
	store.FailWrites(errors.New("disk full"))
*/
package testutil
