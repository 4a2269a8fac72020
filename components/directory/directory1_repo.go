package directory

import (
	"strings"
	"sync"

	"kawan/components/user"
	"kawan/store"

	"github.com/gammazero/workerpool"
)

// searchWorkers bounds the concurrent batched reads of a friends-only
// search.
const searchWorkers = 4

type I_DirectoryRepo interface {
	SearchAll(keyword string) ([]*user.DBUser, error)
	SearchFriends(uid, keyword string) ([]*user.DBUser, error)
	ListAll() ([]*user.DBUser, error)
	WatchAll() (<-chan []*user.DBUser, func(), error)
}

// DirectoryService answers name/email substring searches. The store
// only gives point lookups, batched id reads and full scans, so
// matching happens here after the fetch.
type DirectoryService struct {
	userService user.I_UserRepo
}

func NewDirectoryService(userService user.I_UserRepo) I_DirectoryRepo {
	return &DirectoryService{userService}
}

// matchKeyword is a case-insensitive substring test against the name
// and email. An empty keyword matches everyone.
func matchKeyword(u *user.DBUser, keyword string) bool {
	if keyword == "" {
		return true
	}
	k := strings.ToLower(keyword)
	return strings.Contains(strings.ToLower(u.Name), k) ||
		strings.Contains(strings.ToLower(u.Email), k)
}

func filterKeyword(users []*user.DBUser, keyword string) []*user.DBUser {
	out := []*user.DBUser{}
	for _, u := range users {
		if matchKeyword(u, keyword) {
			out = append(out, u)
		}
	}
	return out
}

func (me *DirectoryService) SearchAll(keyword string) ([]*user.DBUser, error) {
	users, err := me.userService.FindAllUsers()
	if err != nil {
		return nil, err
	}
	return filterKeyword(users, keyword), nil
}

// SearchFriends resolves the caller's friend ids in batches capped at
// the store's fan-out limit, fetched concurrently, then applies the
// keyword. Any batch failure fails the whole search.
func (me *DirectoryService) SearchFriends(uid, keyword string) ([]*user.DBUser, error) {
	self, err := me.userService.FindUserById(uid)
	if err != nil {
		return nil, err
	}

	if len(self.Friends) == 0 {
		return []*user.DBUser{}, nil
	}

	var batches [][]string
	for start := 0; start < len(self.Friends); start += store.FanOutLimit {
		end := start + store.FanOutLimit
		if end > len(self.Friends) {
			end = len(self.Friends)
		}
		batches = append(batches, self.Friends[start:end])
	}

	wp := workerpool.New(searchWorkers)
	var mu sync.Mutex
	var merged []*user.DBUser
	var firstErr error

	for _, batch := range batches {
		b := batch
		wp.Submit(func() {
			users, err := me.userService.FindUsersIn(b)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			merged = append(merged, users...)
		})
	}
	wp.StopWait()

	if firstErr != nil {
		return nil, firstErr
	}

	return filterKeyword(merged, keyword), nil
}

func (me *DirectoryService) ListAll() ([]*user.DBUser, error) {
	return me.userService.FindAllUsers()
}

func (me *DirectoryService) WatchAll() (<-chan []*user.DBUser, func(), error) {
	return me.userService.WatchAll()
}
