// Aggregation operators for rx
// 聚合操作符：在源完成时发射单个结果
package rx

import "cmp"

// Number 可求和的数值类型
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// reduce 聚合骨架：每个值更新状态，完成时由 result 产生最终值
func reduce[T, R any](src Observable[T], name string, step func(T) (stop bool, err error), result func() (R, error)) Observable[R] {
	return NewObservable(func(s *Subscriber[R]) {
		finish := func() {
			r, err := result()
			if err != nil {
				s.OnError(err)
				return
			}
			s.OnNext(r)
			s.OnCompleted()
		}
		subscribeInner(src, s, func(n Notification[T]) {
			switch n.Kind() {
			case KindNext:
				var stop bool
				_, err := guard(name, func() (struct{}, error) {
					var err error
					stop, err = step(n.Value())
					return struct{}{}, err
				})
				if err != nil {
					s.OnError(err)
					return
				}
				if stop {
					finish()
				}
			case KindError:
				s.OnError(n.Err())
			case KindCompleted:
				finish()
			}
		})
	})
}

// Aggregate 以 seed 为初值累加，完成时发射最终结果
func Aggregate[T, A any](src Observable[T], seed A, accumulator Accumulator[A, T]) Observable[A] {
	return Defer(func() Observable[A] {
		state := seed
		return reduce(src, "Aggregate",
			func(v T) (bool, error) {
				state = accumulator(state, v)
				return false, nil
			},
			func() (A, error) { return state, nil })
	})
}

// Count 元素个数
func Count[T any](src Observable[T]) Observable[int] {
	return Aggregate(src, 0, func(n int, _ T) int { return n + 1 })
}

// Sum 求和，空序列为 0
func Sum[T Number](src Observable[T]) Observable[T] {
	return Aggregate(src, T(0), func(acc, v T) T { return acc + v })
}

// Average 平均值，空序列返回 ErrNoElements
func Average[T Number](src Observable[T]) Observable[float64] {
	return Defer(func() Observable[float64] {
		var (
			sum   float64
			count int
		)
		return reduce(src, "Average",
			func(v T) (bool, error) {
				sum += float64(v)
				count++
				return false, nil
			},
			func() (float64, error) {
				if count == 0 {
					return 0, ErrNoElements
				}
				return sum / float64(count), nil
			})
	})
}

// Min 最小值，空序列返回 ErrNoElements
func Min[T cmp.Ordered](src Observable[T]) Observable[T] {
	return extreme(src, "Min", func(a, b T) bool { return cmp.Less(b, a) })
}

// Max 最大值，空序列返回 ErrNoElements
func Max[T cmp.Ordered](src Observable[T]) Observable[T] {
	return extreme(src, "Max", func(a, b T) bool { return cmp.Less(a, b) })
}

func extreme[T any](src Observable[T], name string, replace func(current, candidate T) bool) Observable[T] {
	return Defer(func() Observable[T] {
		var (
			best T
			has  bool
		)
		return reduce(src, name,
			func(v T) (bool, error) {
				if !has || replace(best, v) {
					best, has = v, true
				}
				return false, nil
			},
			func() (T, error) {
				if !has {
					return best, ErrNoElements
				}
				return best, nil
			})
	})
}

// All 所有值都满足谓词时发射 true；遇到不满足的值立即发射 false
func All[T any](src Observable[T], predicate Predicate[T]) Observable[bool] {
	return Defer(func() Observable[bool] {
		result := true
		return reduce(src, "All",
			func(v T) (bool, error) {
				if !predicate(v) {
					result = false
					return true, nil
				}
				return false, nil
			},
			func() (bool, error) { return result, nil })
	})
}

// Any 存在满足谓词的值时立即发射 true；谓词为 nil 时判断序列是否非空
func Any[T any](src Observable[T], predicate Predicate[T]) Observable[bool] {
	return Defer(func() Observable[bool] {
		result := false
		return reduce(src, "Any",
			func(v T) (bool, error) {
				if predicate == nil || predicate(v) {
					result = true
					return true, nil
				}
				return false, nil
			},
			func() (bool, error) { return result, nil })
	})
}

// Contains 是否包含 value
func Contains[T comparable](src Observable[T], value T) Observable[bool] {
	return Any(src, func(v T) bool { return v == value })
}

// ToSlice 完成时发射所有值组成的切片
func ToSlice[T any](src Observable[T]) Observable[[]T] {
	return Defer(func() Observable[[]T] {
		var values []T
		return reduce(src, "ToSlice",
			func(v T) (bool, error) {
				values = append(values, v)
				return false, nil
			},
			func() ([]T, error) { return values, nil })
	})
}

// ToMap 完成时发射按 key 索引的映射，重复 key 保留最后一个值
func ToMap[T any, K comparable](src Observable[T], key func(T) K) Observable[map[K]T] {
	return Defer(func() Observable[map[K]T] {
		values := make(map[K]T)
		return reduce(src, "ToMap",
			func(v T) (bool, error) {
				values[key(v)] = v
				return false, nil
			},
			func() (map[K]T, error) { return values, nil })
	})
}
