package ws

// Presence 是本实例的 room → 连接集合表。每个网关实例只看得到
// 自己持有的连接，这张表绝不跨实例复制；全局视角只存在于
// broker 之后的消费端。所有读写都由 Hub 的锁保护。
type Presence struct {
	rooms map[string]map[*Client]struct{}
}

func NewPresence() *Presence {
	return &Presence{rooms: make(map[string]map[*Client]struct{})}
}

func (p *Presence) add(c *Client, room string) {
	members, ok := p.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		p.rooms[room] = members
	}
	members[c] = struct{}{}
}

// remove 把连接从房间移除，房间空了就回收整个条目。
// 返回房间移除后是否已没有本地成员。
func (p *Presence) remove(c *Client, room string) bool {
	members, ok := p.rooms[room]
	if !ok {
		return true
	}
	delete(members, c)
	if len(members) == 0 {
		delete(p.rooms, room)
		return true
	}
	return false
}

func (p *Presence) members(room string) []*Client {
	members := p.rooms[room]
	if len(members) == 0 {
		return nil
	}
	out := make([]*Client, 0, len(members))
	for c := range members {
		out = append(out, c)
	}
	return out
}

func (p *Presence) count(room string) int {
	return len(p.rooms[room])
}
