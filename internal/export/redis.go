package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/conduit-lang/codegraph/internal/graph"
)

// RedisSink stores a graph under a key prefix:
//
//	<prefix>nodes      list of node ids in insertion order
//	<prefix>node:<id>  hash with label, category and group
//	<prefix>links      list of JSON encoded links in insertion order
//	<prefix>stats      hash with node, link and group counts
type RedisSink struct {
	client *redis.Client
	prefix string
}

// OpenRedis connects to the server given by a redis:// URL
func OpenRedis(ctx context.Context, url, prefix string) (*RedisSink, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisSink(client, prefix), nil
}

// NewRedisSink wraps an existing client
func NewRedisSink(client *redis.Client, prefix string) *RedisSink {
	return &RedisSink{client: client, prefix: prefix}
}

func (s *RedisSink) key(name string) string {
	return s.prefix + name
}

// Store replaces the stored graph with g in one MULTI/EXEC block
func (s *RedisSink) Store(ctx context.Context, g *graph.Graph) error {
	previous, err := s.client.LRange(ctx, s.key("nodes"), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to list stored nodes: %w", err)
	}

	links := make([]interface{}, 0, g.EdgeCount())
	for _, edge := range g.Edges() {
		data, err := json.Marshal(LinkRecord{
			Source:   edge.Source.ID,
			Target:   edge.Target.ID,
			Category: edge.Category.String(),
		})
		if err != nil {
			return err
		}
		links = append(links, string(data))
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range previous {
			pipe.Del(ctx, s.key("node:"+id))
		}
		pipe.Del(ctx, s.key("nodes"), s.key("links"), s.key("stats"))

		ids := make([]interface{}, 0, g.NodeCount())
		for _, node := range g.Nodes() {
			pipe.HSet(ctx, s.key("node:"+node.ID),
				"label", node.Label,
				"category", node.Category.String(),
				"group", node.Group.String())
			ids = append(ids, node.ID)
		}
		if len(ids) > 0 {
			pipe.RPush(ctx, s.key("nodes"), ids...)
		}
		if len(links) > 0 {
			pipe.RPush(ctx, s.key("links"), links...)
		}

		stats := g.Stats()
		pipe.HSet(ctx, s.key("stats"),
			"nodes", stats.NodeCount,
			"links", stats.EdgeCount,
			"groups", stats.Groups)
		return nil
	})
	return err
}

// Close closes the client
func (s *RedisSink) Close() error {
	return s.client.Close()
}
