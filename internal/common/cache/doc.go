// Package cache provides a small TTL cache with two backends:
//   - github.com/patrickmn/go-cache for a single instance
//   - github.com/go-redis/redis/v8 when several instances share Redis
//
// Values are stored as JSON so both backends hand back the same shape:
//
//	c := cache.NewLocalCache(10*time.Minute, 20*time.Minute)
//	_ = c.Set(ctx, "chat:19:abc", chat, time.Hour)
//	var got teams.Chat
//	found, err := c.Get(ctx, "chat:19:abc", &got)
package cache
